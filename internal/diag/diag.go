// Package diag is the diagnostics channel spec section 7 describes:
// non-fatal errors and periodic-task status lines are pushed here for
// frontends to display as typed entries, instead of being returned to
// a caller that already moved on.
package diag

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/tenex-go/tenexcore/internal/corerr"
)

// meter is the core's OTel meter. No SDK MeterProvider is registered
// here: by default this resolves to the no-op global provider, the
// way a library leaves exporter wiring to its embedding daemon's
// main() rather than registering one for itself.
var meter = otel.Meter("github.com/tenex-go/tenexcore/internal/diag")

func mustCounter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		// Only returns an error for a malformed name/option, never at
		// runtime; the no-op provider can't fail this.
		panic(err)
	}
	return c
}

var (
	eventsIngestedCounter     = mustCounter("events_ingested_total", "Events accepted into the event store")
	negentropyInsertedCounter = mustCounter("negentropy_cycle_inserted", "Events inserted per negentropy reconciliation cycle")
	bunkerRequestsCounter     = mustCounter("bunker_requests_total", "Inbound NIP-46 sign_event requests received")
)

// Severity distinguishes a genuine taxonomy error from a routine
// status line (e.g. a sync-cycle summary).
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityError
)

// Entry is one diagnostics-channel item. Kind is only meaningful when
// Severity is SeverityError.
type Entry struct {
	Time     time.Time
	Severity Severity
	Kind     corerr.Kind
	Message  string
}

// Channel is a broadcast pub/sub of Entry values. Every subscriber gets
// every entry; a slow subscriber drops entries rather than blocking
// publishers, matching the non-blocking fan-out used throughout the
// rest of the core (ingest.Pipeline, projection.Store).
type Channel struct {
	mu   sync.Mutex
	subs []chan Entry
}

func New() *Channel {
	return &Channel{}
}

// Subscribe returns a channel of future entries and an unsubscribe func.
func (c *Channel) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 64)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s == ch {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

func (c *Channel) publish(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		select {
		case sub <- entry:
		default:
		}
	}
}

// Error publishes a taxonomy error (spec 7 propagation policy).
func (c *Channel) Error(kind corerr.Kind, message string) {
	log.Printf("[diag] %s: %s", kind, message)
	c.publish(Entry{Time: time.Now(), Severity: SeverityError, Kind: kind, Message: message})
}

// Info publishes a routine status line.
func (c *Channel) Info(message string) {
	log.Printf("[diag] %s", message)
	c.publish(Entry{Time: time.Now(), Severity: SeverityInfo, Message: message})
}

// Cycle logs a periodic-task cycle result, matching spec 4.4's
// "(filter_label, inserted_count)" per-cycle diagnostics line.
func (c *Channel) Cycle(label string, inserted int) {
	c.Info(label + ": inserted " + itoa(inserted))
	negentropyInsertedCounter.Add(context.Background(), int64(inserted))
}

// IngestedEvent increments the events_ingested_total counter. Called
// once per event the IngestPipeline actually stores (duplicates and
// signature-rejected events don't count).
func (c *Channel) IngestedEvent() {
	eventsIngestedCounter.Add(context.Background(), 1)
}

// BunkerRequest increments the bunker_requests_total counter. Called
// once per inbound NIP-46 sign_event request BunkerService accepts for
// processing.
func (c *Channel) BunkerRequest() {
	bunkerRequestsCounter.Add(context.Background(), 1)
}

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
