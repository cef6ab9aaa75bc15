package negentropy

import "testing"

func TestAdaptiveIntervalAllEmptyCycles(t *testing.T) {
	s := &Syncer{interval: minInterval}

	want := []int{120, 240, 480, 900, 900}
	for i, w := range want {
		s.adapt(0)
		if got := int(s.Interval().Seconds()); got != w {
			t.Fatalf("cycle %d: got %ds, want %ds", i, got, w)
		}
	}
}

func TestAdaptiveIntervalResetsOnNonemptyCycle(t *testing.T) {
	s := &Syncer{interval: minInterval}

	s.adapt(0) // 60 -> 120
	s.adapt(0) // 120 -> 240
	if got := int(s.Interval().Seconds()); got != 240 {
		t.Fatalf("got %ds, want 240s", got)
	}

	s.adapt(3) // nonempty cycle resets to the floor
	if got := int(s.Interval().Seconds()); got != 60 {
		t.Fatalf("got %ds, want 60s after reset", got)
	}
}

func TestAdaptiveIntervalCapsAtMax(t *testing.T) {
	s := &Syncer{interval: maxInterval}
	s.adapt(0)
	if s.Interval() != maxInterval {
		t.Fatalf("expected interval to stay capped at %s, got %s", maxInterval, s.Interval())
	}
}

func TestEventCollectorDrainEmptyWhenFresh(t *testing.T) {
	c := &eventCollector{}
	if got := c.drain(); len(got) != 0 {
		t.Fatalf("expected empty drain on fresh collector, got %d", len(got))
	}
}
