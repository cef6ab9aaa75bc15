package nostr

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fiatjaf.com/nostr"
)

// DefaultMaxMessageBytes is the default per-message size cap (spec 4.3).
const DefaultMaxMessageBytes = 256 * 1024

// DefaultPublishTimeout is the default deadline for a publish to be
// considered accepted by at least one relay (spec 4.3).
const DefaultPublishTimeout = 8 * time.Second

// DefaultConnectTimeout is the default timeout for connecting to a relay.
const DefaultConnectTimeout = 15 * time.Second

// maxReconnectBackoff caps the exponential reconnect backoff (spec 4.3).
const maxReconnectBackoff = 60 * time.Second

// IngestSink receives events forwarded from relay subscriptions, tagged
// with the relay URL they arrived from. IngestPipeline implements this.
type IngestSink interface {
	Offer(event nostr.Event, relayURL string)
}

// PublishOutcome is the per-relay result of a Publish call.
type PublishOutcome struct {
	Relay    string
	Accepted bool
	Message  string
}

// RelayPool multiplexes outbound subscriptions and publishes across N
// relay endpoints. Reconnect re-dials relays that are not connected and
// resends the active filters to them; filters are kept as passed to
// Subscribe, without merging duplicates.
type RelayPool struct {
	mu          sync.RWMutex
	readURLs    []string
	writeURLs   []string
	readRelays  map[string]*nostr.Relay
	writeRelays map[string]*nostr.Relay
	backoff     map[string]time.Duration
	closed      bool

	sink     IngestSink
	maxBytes int

	activeFilters []nostr.Filter
	subCancels    []context.CancelFunc
}

// NewRelayPool connects to the given read/write relay URL sets. Connect
// failures are logged, not fatal: the pool retries via Reconnect.
func NewRelayPool(ctx context.Context, readURLs, writeURLs []string, sink IngestSink) *RelayPool {
	p := &RelayPool{
		readURLs:    readURLs,
		writeURLs:   writeURLs,
		readRelays:  make(map[string]*nostr.Relay),
		writeRelays: make(map[string]*nostr.Relay),
		backoff:     make(map[string]time.Duration),
		sink:        sink,
		maxBytes:    DefaultMaxMessageBytes,
	}

	for _, url := range writeURLs {
		p.connectWrite(ctx, url)
	}
	for _, url := range readURLs {
		p.connectRead(ctx, url)
	}

	return p
}

func (p *RelayPool) connectWrite(ctx context.Context, url string) {
	relay, err := nostr.RelayConnect(ctx, url, nostr.RelayOptions{})
	if err != nil {
		log.Printf("[relaypool] connect write relay %s failed: %v", url, err)
		return
	}
	p.mu.Lock()
	p.writeRelays[url] = relay
	p.mu.Unlock()
}

func (p *RelayPool) connectRead(ctx context.Context, url string) {
	relay, err := nostr.RelayConnect(ctx, url, nostr.RelayOptions{})
	if err != nil {
		log.Printf("[relaypool] connect read relay %s failed: %v", url, err)
		return
	}
	p.mu.Lock()
	p.readRelays[url] = relay
	p.mu.Unlock()
	p.attachSubscriptions(ctx, relay, url)
}

// Publish broadcasts event to all write relays and succeeds globally if
// at least one relay accepts within DefaultPublishTimeout (spec 4.3).
func (p *RelayPool) Publish(ctx context.Context, event nostr.Event) ([]PublishOutcome, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, fmt.Errorf("relay pool is closed")
	}
	if len(p.writeRelays) == 0 {
		return nil, fmt.Errorf("no write relays connected")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultPublishTimeout)
	defer cancel()

	var outcomes []PublishOutcome
	accepted := 0
	for url, relay := range p.writeRelays {
		if err := relay.Publish(ctx, event); err != nil {
			outcomes = append(outcomes, PublishOutcome{Relay: url, Accepted: false, Message: err.Error()})
			continue
		}
		outcomes = append(outcomes, PublishOutcome{Relay: url, Accepted: true})
		accepted++
	}

	if accepted == 0 {
		return outcomes, fmt.Errorf("no relay accepted the event within %s", DefaultPublishTimeout)
	}
	return outcomes, nil
}

// Subscribe registers filters to resend on every (re)connect and attaches
// them to all currently connected read relays.
func (p *RelayPool) Subscribe(ctx context.Context, filters []nostr.Filter) {
	p.mu.Lock()
	p.activeFilters = append(p.activeFilters, filters...)
	relays := make(map[string]*nostr.Relay, len(p.readRelays))
	for k, v := range p.readRelays {
		relays[k] = v
	}
	p.mu.Unlock()

	for url, relay := range relays {
		p.attachFilters(ctx, relay, url, filters)
	}
}

func (p *RelayPool) attachSubscriptions(ctx context.Context, relay *nostr.Relay, url string) {
	p.mu.RLock()
	filters := append([]nostr.Filter{}, p.activeFilters...)
	p.mu.RUnlock()
	if len(filters) > 0 {
		p.attachFilters(ctx, relay, url, filters)
	}
}

func (p *RelayPool) attachFilters(ctx context.Context, relay *nostr.Relay, url string, filters []nostr.Filter) {
	for _, f := range filters {
		sub, err := relay.Subscribe(ctx, f, nostr.SubscriptionOptions{})
		if err != nil {
			log.Printf("[relaypool] subscribe on %s failed: %v", url, err)
			continue
		}
		go func(s *nostr.Subscription, relayURL string) {
			for ev := range s.Events {
				if p.sink != nil {
					p.sink.Offer(ev, relayURL)
				}
			}
		}(sub, url)
	}
}

// QueryOnce fetches events matching filter from every connected read
// relay, one-shot (no persistent re-subscription on reconnect), and
// forwards each to sink tagged with its source relay. It returns once
// every relay has reached EOSE or ctx is done. Used by NegentropySync's
// reconciliation cycles, which need a bounded fetch rather than a
// standing subscription.
func (p *RelayPool) QueryOnce(ctx context.Context, filter nostr.Filter, sink IngestSink) {
	p.mu.RLock()
	relays := make(map[string]*nostr.Relay, len(p.readRelays))
	for url, relay := range p.readRelays {
		relays[url] = relay
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for url, relay := range relays {
		wg.Add(1)
		go func(url string, relay *nostr.Relay) {
			defer wg.Done()
			sub, err := relay.Subscribe(ctx, filter, nostr.SubscriptionOptions{})
			if err != nil {
				log.Printf("[relaypool] query-once subscribe on %s failed: %v", url, err)
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub.Events:
					if !ok {
						return
					}
					if sink != nil {
						sink.Offer(ev, url)
					}
				}
			}
		}(url, relay)
	}
	wg.Wait()
}

// Reconnect re-dials every configured relay that is not connected,
// including one whose initial connect failed, and resends the active
// filter set to reconnected read relays. A failed attempt doubles that
// relay's recorded backoff (capped at maxReconnectBackoff) and logs it;
// Reconnect neither waits for nor skips a relay because of that backoff.
func (p *RelayPool) Reconnect(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var toReconnect []struct {
		url   string
		write bool
	}
	for _, url := range p.writeURLs {
		if relay, ok := p.writeRelays[url]; !ok || !relay.IsConnected() {
			toReconnect = append(toReconnect, struct {
				url   string
				write bool
			}{url, true})
		}
	}
	for _, url := range p.readURLs {
		if relay, ok := p.readRelays[url]; !ok || !relay.IsConnected() {
			toReconnect = append(toReconnect, struct {
				url   string
				write bool
			}{url, false})
		}
	}
	p.mu.Unlock()

	for _, item := range toReconnect {
		p.mu.Lock()
		backoff := p.backoff[item.url]
		if backoff == 0 {
			backoff = time.Second
		}
		p.mu.Unlock()

		relay, err := nostr.RelayConnect(ctx, item.url, nostr.RelayOptions{})
		p.mu.Lock()
		if err != nil {
			next := backoff * 2
			if next > maxReconnectBackoff {
				next = maxReconnectBackoff
			}
			p.backoff[item.url] = next
			p.mu.Unlock()
			log.Printf("[relaypool] reconnect %s failed (next backoff %s): %v", item.url, next, err)
			continue
		}
		p.backoff[item.url] = 0
		if item.write {
			p.writeRelays[item.url] = relay
		} else {
			p.readRelays[item.url] = relay
		}
		p.mu.Unlock()
		if !item.write {
			p.attachSubscriptions(ctx, relay, item.url)
		}
	}
}

// ConnectedWriteRelays returns the number of currently connected write relays.
func (p *RelayPool) ConnectedWriteRelays() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, relay := range p.writeRelays {
		if relay.IsConnected() {
			n++
		}
	}
	return n
}

// WriteRelayURLs returns the configured write relay URLs.
func (p *RelayPool) WriteRelayURLs() []string { return p.writeURLs }

// ReadRelayURLs returns the configured read relay URLs.
func (p *RelayPool) ReadRelayURLs() []string { return p.readURLs }

// IsWriteConnected reports whether the given write relay URL is
// currently connected.
func (p *RelayPool) IsWriteConnected(url string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	relay, ok := p.writeRelays[url]
	return ok && relay.IsConnected()
}

// IsReadConnected reports whether the given read relay URL is
// currently connected.
func (p *RelayPool) IsReadConnected(url string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	relay, ok := p.readRelays[url]
	return ok && relay.IsConnected()
}

// HealthCheck logs the current connection status of all relays.
func (p *RelayPool) HealthCheck() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for url, relay := range p.writeRelays {
		log.Printf("[relaypool] write %s: connected=%v", url, relay.IsConnected())
	}
	for url, relay := range p.readRelays {
		log.Printf("[relaypool] read %s: connected=%v", url, relay.IsConnected())
	}
}

// Close disconnects from all relays.
func (p *RelayPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, relay := range p.writeRelays {
		relay.Close()
	}
	for _, relay := range p.readRelays {
		relay.Close()
	}
	p.writeRelays = nil
	p.readRelays = nil
}
