package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bakkal/backoffice/internal/store"
)

type watchDoc struct {
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
	UpdateTime time.Time      `json:"update_time"`
}

type watchEvent struct {
	Collection string     `json:"collection"`
	At         time.Time  `json:"at"`
	Docs       []watchDoc `json:"docs"`
}

// handleWatch streams collection snapshots as server-sent events until the
// client goes away or the store closes the subscription.
func (a *API) handleWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	snapshots, err := a.service.Watch(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snap := range snapshots {
		payload, err := json.Marshal(toWatchEvent(snap))
		if err != nil {
			writeSSE(w, "error", []byte(`{"error":"encode snapshot"}`))
			flusher.Flush()
			continue
		}
		writeSSE(w, "snapshot", payload)
		flusher.Flush()
	}
}

func toWatchEvent(snap store.Snapshot) watchEvent {
	docs := make([]watchDoc, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		docs = append(docs, watchDoc{ID: doc.ID, Data: doc.Data, UpdateTime: doc.UpdateTime})
	}
	return watchEvent{Collection: snap.Collection, At: snap.At, Docs: docs}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
