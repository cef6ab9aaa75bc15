package eventstore

import (
	"sync"

	"fiatjaf.com/nostr"
)

// subscriberBufferSize bounds each subscriber's channel; a slow
// consumer drops events rather than blocking ingestion.
const subscriberBufferSize = 256

type subscription struct {
	filter Filter
	ch     chan nostr.Event
}

// subscribeCommon is shared by BadgerStore and MemoryStore so live
// subscription semantics are identical across backends.
func subscribeCommon(mu *sync.Mutex, subs *[]*subscription, filter Filter) (<-chan nostr.Event, func()) {
	sub := &subscription{filter: filter, ch: make(chan nostr.Event, subscriberBufferSize)}

	mu.Lock()
	*subs = append(*subs, sub)
	mu.Unlock()

	unsubscribe := func() {
		mu.Lock()
		defer mu.Unlock()
		for i, s := range *subs {
			if s == sub {
				*subs = append((*subs)[:i], (*subs)[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}

	return sub.ch, unsubscribe
}

func notifyCommon(mu *sync.Mutex, subs *[]*subscription, event nostr.Event) {
	mu.Lock()
	defer mu.Unlock()
	for _, sub := range *subs {
		if !matchesFilter(event, sub.filter) {
			continue
		}
		select {
		case sub.ch <- event:
		default: // slow consumer, drop rather than block ingestion
		}
	}
}
