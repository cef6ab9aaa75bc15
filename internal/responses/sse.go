package responses

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/eventstore"
)

const deltaChunkRunes = 40

// streamReplies emits spec 4.8 step 5's SSE sequence: response.created,
// response.in_progress, then one output_item/content_part/delta*/done
// group for the first reply event observed, then response.completed.
// It uses the standard http.Flusher-after-each-write SSE idiom,
// bounded to a sequence that ends once a reply arrives or the idle
// timeout elapses rather than an indefinite heartbeat loop.
func (s *Server) streamReplies(w http.ResponseWriter, r *http.Request, postedEventID, threadID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	responseID := responseIDPrefix + postedEventID
	send := func(event string, data any) bool {
		payload, err := json.Marshal(data)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	send("response.created", map[string]any{"id": responseID, "status": "created"})
	send("response.in_progress", map[string]any{"id": responseID, "status": "in_progress"})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, unsubscribe := s.store.Subscribe(ctx, eventstore.Filter{
		Kinds: gtnostrKindsForReply,
		Tags:  map[string][]string{"e": {postedEventID}},
	})
	defer unsubscribe()

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	select {
	case <-ctx.Done():
		return
	case <-idle.C:
		// Failure semantics (spec 4.8): stream terminates on upstream
		// disconnect/timeout; the posted event is never retracted.
		return
	case event, ok := <-sub:
		if !ok {
			return
		}
		s.emitReply(send, responseID, event)
	}
}

// emitReply renders one reply event as the single output item of this
// response: an output_item.added, a content_part.added, a run of
// output_text.delta chunks, then output_text.done/output_item.done and
// finally response.completed.
func (s *Server) emitReply(send func(string, any) bool, responseID string, event nostr.Event) {
	const itemID = "item_0"

	if !send("response.output_item.added", map[string]any{
		"response_id": responseID,
		"item":        map[string]any{"id": itemID, "type": "message", "role": "assistant"},
	}) {
		return
	}
	if !send("response.content_part.added", map[string]any{
		"response_id": responseID,
		"item_id":     itemID,
		"part":        map[string]any{"type": "output_text", "text": ""},
	}) {
		return
	}

	text := event.Content
	runes := []rune(text)
	for start := 0; start < len(runes); start += deltaChunkRunes {
		end := start + deltaChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		if !send("response.output_text.delta", map[string]any{
			"response_id": responseID,
			"item_id":     itemID,
			"delta":       string(runes[start:end]),
		}) {
			return
		}
	}
	if len(runes) == 0 {
		send("response.output_text.delta", map[string]any{
			"response_id": responseID,
			"item_id":     itemID,
			"delta":       "",
		})
	}

	send("response.output_text.done", map[string]any{
		"response_id": responseID,
		"item_id":     itemID,
		"text":        text,
	})
	send("response.output_item.done", map[string]any{
		"response_id": responseID,
		"item":        map[string]any{"id": itemID, "type": "message", "role": "assistant"},
	})
	send("response.completed", map[string]any{"id": responseID, "status": "completed"})
}
