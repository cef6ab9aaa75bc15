package diag

import (
	"testing"
	"time"

	"github.com/tenex-go/tenexcore/internal/corerr"
)

func TestSubscribeReceivesPublishedEntries(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	c.Error(corerr.KindRelay, "publish failed")

	select {
	case entry := <-ch:
		if entry.Severity != SeverityError || entry.Kind != corerr.KindRelay {
			t.Errorf("unexpected entry: %#v", entry)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for entry")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	unsubscribe()

	c.Info("should not be delivered")

	if _, ok := <-ch; ok {
		t.Errorf("expected channel to be closed after unsubscribe")
	}
}

func TestCycleStillPublishesAnInfoEntry(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	c.Cycle("#project", 3)

	select {
	case entry := <-ch:
		if entry.Severity != SeverityInfo {
			t.Errorf("expected SeverityInfo, got %v", entry.Severity)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for entry")
	}
}

func TestCounterMethodsDoNotPanic(t *testing.T) {
	c := New()
	c.IngestedEvent()
	c.BunkerRequest()
	c.Cycle("#project", 0)
}
