// Package nostr provides the Nostr event/tag construction and relay
// plumbing shared by every core component. All event shapes, kind
// constants, and tag builders for the protocol's data model live here.
//
// Key abstractions:
//   - Publisher: high-level sign -> broadcast -> spool-on-failure API
//   - Signer: signing backend interface (LocalSigner is its only implementation)
//   - RelayPool: connection management across read/write relays
//   - Spool: local event queue for offline resilience
package nostr

import (
	"encoding/hex"
	"fmt"

	"fiatjaf.com/nostr"
)

// --- Event Kind Constants (spec data model, section 3.2) ---

const (
	KindProfile        = 0     // NIP-01: agent/user profile metadata
	KindThreadRoot      = 1     // root text note (thread) or reply message
	KindChannelMessage = 11    // root text note variant used for threads
	KindConvMetadata   = 513   // per-thread title/status/activity
	KindAgentLesson    = 4129  // lesson learned by an agent
	KindAgentDef       = 4199  // agent definition
	KindMCPTool        = 4200  // MCP tool definition
	KindNudge          = 4201  // nudge
	KindSkill          = 4202  // skill
	KindRelayList      = 10002 // NIP-65: relay list
	KindDMRelayList    = 10050 // NIP-17: DM relay list
	KindProjectStatus  = 24010 // ephemeral: online agents / assignments
	KindBunkerRequest  = 24133 // NIP-46 bunker request/response family
	KindReport         = 30023 // NIP-23: long-form article/report
	KindProject        = 31933 // project definition
)

// EphemeralKinds are not persisted long-term and excluded from
// NegentropySync reconciliation (spec section 4.4).
var EphemeralKinds = map[int]bool{
	KindProjectStatus: true,
}

// AddressableKindRanges per Nostr convention: 10000-19999 and 30000-39999.
func IsAddressableKind(kind int) bool {
	return (kind >= 10000 && kind < 20000) || (kind >= 30000 && kind < 40000)
}

// --- Protocol Constants ---

// SchemaPrefix is prepended to all schema identifiers in event content.
const SchemaPrefix = "core/"

// --- Tag Builder Functions ---

// ReplaceableTag returns a NIP-33 "d" tag for parameterized replaceable events.
func ReplaceableTag(d string) nostr.Tag {
	return nostr.Tag{"d", d}
}

// ProjectCoordTag returns an "a" tag coordinate referencing a project.
func ProjectCoordTag(pubkeyHex, dTag string) nostr.Tag {
	return nostr.Tag{"a", Coordinate(KindProject, pubkeyHex, dTag)}
}

// ReportCoordTag returns an "a" tag coordinate referencing a report/article.
func ReportCoordTag(pubkeyHex, dTag string) nostr.Tag {
	return nostr.Tag{"a", Coordinate(KindReport, pubkeyHex, dTag)}
}

// ParticipantTag returns a "p" tag for a participant pubkey.
func ParticipantTag(pubkeyHex string) nostr.Tag {
	return nostr.Tag{"p", pubkeyHex}
}

// RootTag returns an "e" tag marking the root event of a thread.
func RootTag(eventIDHex string) nostr.Tag {
	return nostr.Tag{"e", eventIDHex, "", "root"}
}

// ReplyTag returns an "e" tag marking a direct reply to another message.
func ReplyTag(eventIDHex string) nostr.Tag {
	return nostr.Tag{"e", eventIDHex, "", "reply"}
}

// SchemaVersion returns a schema identifier string like "core/project@1".
func SchemaVersion(name string, version int) string {
	return SchemaPrefix + name + "@" + itoa(version)
}

// Coordinate builds the "kind:pubkey:d" addressable-event coordinate string.
func Coordinate(kind int, pubkeyHex, dTag string) string {
	return itoa(kind) + ":" + pubkeyHex + ":" + dTag
}

// --- Type Conversion Helpers ---
// fiatjaf.com/nostr uses fixed-size byte array types for ID/PubKey/Sig
// (not string aliases); these helpers provide safe conversions to/from hex.

// IDToString converts a nostr.ID (byte array) to its hex string representation.
func IDToString(id nostr.ID) string {
	return fmt.Sprintf("%x", id)
}

// PubKeyFromHex converts a hex string to a nostr.PubKey byte array.
// Returns a zero PubKey if the hex string is invalid or wrong length.
func PubKeyFromHex(hexStr string) nostr.PubKey {
	var pk nostr.PubKey
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != len(pk) {
		return pk // zero value
	}
	copy(pk[:], b)
	return pk
}

// PubKeyToString converts a nostr.PubKey (byte array) to its hex string representation.
func PubKeyToString(pk nostr.PubKey) string {
	return fmt.Sprintf("%x", pk)
}

// SigFromHex converts a hex string to a 64-byte Sig array.
func SigFromHex(hexStr string) [64]byte {
	var sig [64]byte
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 64 {
		return sig
	}
	copy(sig[:], b)
	return sig
}

// KindSlice converts plain int values to a []nostr.Kind slice.
func KindSlice(kinds ...int) []nostr.Kind {
	result := make([]nostr.Kind, len(kinds))
	for i, k := range kinds {
		result[i] = nostr.Kind(k)
	}
	return result
}

// itoa is a simple int-to-string without importing strconv, matching
// the rest of this package's dependency-light tag-construction helpers.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
