package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/notify"
)

func writeEvent(w io.Writer, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Type, ev.Seq, data)
	return err
}

// stream relays a job's events to the client as server-sent events. The job
// always runs to completion: once the client goes away its events are still
// drained and published, only no longer written.
func (h *handler) stream(w http.ResponseWriter, r *http.Request, job *engine.Job) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With("run_id", job.RunID)
	connected := true
	events := notify.Relay(detach(r.Context()), job.Events(), logger, h.publishers...)
	for ev := range events {
		if !connected {
			continue
		}
		if r.Context().Err() != nil {
			logger.Info("client disconnected, run continues")
			connected = false
			continue
		}
		if err := writeEvent(w, ev); err != nil {
			logger.Debug("failed to write event", "error", err)
			connected = false
			continue
		}
		if err := rc.Flush(); err != nil {
			logger.Debug("failed to flush event", "error", err)
			connected = false
		}
	}

	if _, err := job.Wait(); err != nil {
		logger.Warn("run ended with error", "error", err)
	}
}
