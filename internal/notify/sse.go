package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultKeepAlive is the interval between SSE comment pings.
const DefaultKeepAlive = 25 * time.Second

// HandleSSE streams events as server-sent events. An optional ?topics=a,b
// query parameter limits the stream to those topics.
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, parseTopics(r.URL.Query().Get("topics")), DefaultKeepAlive)
}

// Stream returns an SSE handler limited to topics.
func (h *Hub) Stream(keepAlive time.Duration, topics ...string) http.HandlerFunc {
	filter := make(map[string]bool, len(topics))
	for _, t := range topics {
		filter[t] = true
	}
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, filter, keepAlive)
	}
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, topics map[string]bool, keepAlive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.Subscribe()
	defer sub.Close()

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if len(topics) > 0 && !topics[msg.Topic] {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, msg.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseTopics(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	return out
}
