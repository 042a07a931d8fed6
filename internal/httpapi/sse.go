package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ragforge/internal/streamer"
)

// streamSSE writes the server-push envelope of SPEC_FULL.md §6: one
// `data: <json>\n\n` line per event, terminated by `data: [DONE]\n\n`. It
// drains events until the channel closes or the client disconnects.
func streamSSE(w http.ResponseWriter, r *http.Request, events <-chan streamer.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				fmt.Fprint(w, "data: [DONE]\n\n")
				if flusher != nil {
					flusher.Flush()
				}
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
