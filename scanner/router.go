package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/a11yscan/progress"
)

// Router builds the HTTP API: scan submission, status/result queries, and a
// live SSE progress feed backed by the broadcaster.
func (o *Orchestrator) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/scans", o.handleStartScan)
	r.Get("/scans/{id}", o.handleGetScan)
	r.Get("/scans/{id}/findings", o.handleListFindings)
	r.Get("/scans/{id}/report", o.handleReport)
	r.Get("/scans/{id}/events", o.handleEvents)

	return r
}

// StartScanRequest is the body for POST /scans.
type StartScanRequest struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
}

func (o *Orchestrator) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}

	id, err := o.StartScan(r.Context(), req.URL, req.MaxDepth, req.MaxPages)
	if err != nil {
		o.logger.Error("api: start scan failed", "url", req.URL, "error", err)
		http.Error(w, "Failed to start scan", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": id})
}

func (o *Orchestrator) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sc, err := o.store.GetScan(r.Context(), id)
	if err != nil {
		o.logger.Error("api: get scan failed", "scan_id", id, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if sc == nil {
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	}

	score, err := o.store.GetScore(r.Context(), id)
	if err != nil {
		o.logger.Error("api: get score failed", "scan_id", id, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scan":  sc,
		"score": score, // null until the scan completes
	})
}

func (o *Orchestrator) handleListFindings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sc, err := o.store.GetScan(r.Context(), id)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if sc == nil {
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	}

	fs, err := o.store.ListFindings(r.Context(), id)
	if err != nil {
		o.logger.Error("api: list findings failed", "scan_id", id, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": fs})
}

func (o *Orchestrator) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rep, err := o.BuildReport(r.Context(), id)
	if errors.Is(err, ErrScanNotFound) {
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	}
	if err != nil {
		o.logger.Error("api: build report failed", "scan_id", id, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleEvents streams progress updates for one scan as server-sent events.
// The stream ends when the scan reaches a terminal state or the client
// disconnects.
func (o *Orchestrator) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Broadcaster delivery is synchronous; buffer enough that a slow client
	// flush cannot stall the publisher.
	updates := make(chan progress.State, 64)
	unsubscribe := o.bcast.Subscribe(id, func(st progress.State) {
		select {
		case updates <- st:
		default: // client too slow, drop intermediate updates
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-updates:
			payload, err := json.Marshal(st)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if st.Terminal() {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
