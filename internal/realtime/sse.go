package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultHeartbeat is used when ServeSSE is given no positive interval.
const DefaultHeartbeat = 15 * time.Second

// ServeSSE streams sub's envelopes as "event: message" until the request ends
// or the subscriber is removed, then unsubscribes.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, sub *Subscriber, heartbeat time.Duration) {
	defer h.Unsubscribe(sub)
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ready, _ := json.Marshal(Frame{Type: FrameConfirmSubscription, Channel: channelName(sub)})
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", FrameConfirmSubscription, ready)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("sse client context done", "subscriber_id", sub.ID, "err", ctx.Err())
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case env, ok := <-sub.Outbound():
			if !ok {
				return
			}
			raw, err := json.Marshal(env)
			if err != nil {
				h.log.Warn("failed to marshal envelope", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", raw)
			flusher.Flush()
		}
	}
}
