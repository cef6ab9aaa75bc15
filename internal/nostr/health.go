package nostr

import (
	"fmt"
	"strings"
)

// Status is a point-in-time snapshot of relay/signer/spool health, built
// by CheckStatus and rendered by FormatStatus.
type Status struct {
	WriteRelays  []RelayStatus `json:"write_relays"`
	ReadRelays   []RelayStatus `json:"read_relays"`
	SignerStatus string        `json:"signer_status"`
	SpoolCount   int           `json:"spool_count"`
}

// RelayStatus represents a relay's connection status.
type RelayStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
}

// CheckStatus builds a Status snapshot from a live pool and spool.
func CheckStatus(pool *RelayPool, spool *Spool, signerConfigured bool) *Status {
	status := &Status{}

	for _, url := range pool.WriteRelayURLs() {
		status.WriteRelays = append(status.WriteRelays, RelayStatus{URL: url, Connected: pool.IsWriteConnected(url)})
	}

	for _, url := range pool.ReadRelayURLs() {
		status.ReadRelays = append(status.ReadRelays, RelayStatus{URL: url, Connected: pool.IsReadConnected(url)})
	}

	if signerConfigured {
		status.SignerStatus = "configured"
	} else {
		status.SignerStatus = "not configured"
	}

	if spool != nil {
		status.SpoolCount = spool.Count()
	}

	return status
}

// FormatStatus formats a Status as human-readable text.
func FormatStatus(s *Status) string {
	var sb strings.Builder

	sb.WriteString("Nostr Status:\n")
	for _, r := range s.WriteRelays {
		icon := "connected"
		if !r.Connected {
			icon = "disconnected"
		}
		sb.WriteString(fmt.Sprintf("  Write Relay: %s (%s)\n", r.URL, icon))
	}
	for _, r := range s.ReadRelays {
		icon := "connected"
		if !r.Connected {
			icon = "disconnected"
		}
		sb.WriteString(fmt.Sprintf("  Read Relay: %s (%s)\n", r.URL, icon))
	}
	sb.WriteString(fmt.Sprintf("  Signer: %s\n", s.SignerStatus))
	sb.WriteString(fmt.Sprintf("  Spool: %d events pending\n", s.SpoolCount))

	return sb.String()
}
