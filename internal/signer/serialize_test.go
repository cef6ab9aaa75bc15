package signer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"fiatjaf.com/nostr"
)

type counterSigner struct {
	inFlight int32
	maxSeen  int32
}

func (c *counterSigner) Sign(ctx context.Context, event *nostr.Event) error {
	n := atomic.AddInt32(&c.inFlight, 1)
	for {
		max := atomic.LoadInt32(&c.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&c.maxSeen, max, n) {
			break
		}
	}
	atomic.AddInt32(&c.inFlight, -1)
	return nil
}

func (c *counterSigner) GetPublicKey() string { return "deadbeef" }
func (c *counterSigner) Close() error         { return nil }

func TestSerializedSignSerializesCallers(t *testing.T) {
	inner := &counterSigner{}
	s := Wrap(inner)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Sign(context.Background(), &nostr.Event{})
		}()
	}
	wg.Wait()

	if inner.maxSeen > 1 {
		t.Errorf("expected at most 1 concurrent Sign call, saw %d", inner.maxSeen)
	}
}
