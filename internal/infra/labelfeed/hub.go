package labelfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"go.uber.org/zap"
)

// LabelState is the latest known classification for one modality.
type LabelState struct {
	SessionID  uuid.UUID `json:"session_id"`
	Label      string    `json:"label"`
	SampleTime float64   `json:"sample_time_seconds"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Hub keeps the latest label per modality and fans label events out to
// websocket watchers. It implements the label publisher port, so the session
// controller treats it like any other label sink.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	labels   map[entity.Modality]LabelState
	watchers map[chan entity.LabelEvent]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		logger:   logger,
		labels:   make(map[entity.Modality]LabelState),
		watchers: make(map[chan entity.LabelEvent]struct{}),
	}
	h.Reset(uuid.Nil)
	return h
}

// Reset seeds both modalities with the default label for a new session.
func (h *Hub) Reset(sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	for _, m := range []entity.Modality{entity.ModalityImage, entity.ModalityAudio} {
		h.labels[m] = LabelState{SessionID: sessionID, Label: entity.LabelNotProcessed, UpdatedAt: now}
	}
}

func (h *Hub) PublishLabel(ctx context.Context, ev entity.LabelEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.labels[ev.Modality] = LabelState{
		SessionID:  ev.SessionID,
		Label:      ev.Label,
		SampleTime: ev.SampleTime,
		UpdatedAt:  ev.EmittedAt,
	}
	for ch := range h.watchers {
		select {
		case ch <- ev:
		default:
			// slow watcher; skip the event rather than stall the pipeline
		}
	}
	return nil
}

func (h *Hub) Snapshot() map[entity.Modality]LabelState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[entity.Modality]LabelState, len(h.labels))
	for m, s := range h.labels {
		out[m] = s
	}
	return out
}

func (h *Hub) subscribe() chan entity.LabelEvent {
	ch := make(chan entity.LabelEvent, 16)
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan entity.LabelEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.watchers[ch]; ok {
		delete(h.watchers, ch)
		close(ch)
	}
}

// SnapshotHandler serves the current labels as a JSON object keyed by
// modality.
func (h *Hub) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(h.Snapshot()); err != nil {
			h.logger.Warn("write label snapshot", zap.Error(err))
		}
	}
}

// StreamHandler upgrades the request to a websocket, sends the current
// snapshot, then streams label events until the client goes away.
func (h *Hub) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		ch := h.subscribe()
		defer h.unsubscribe(ch)

		go func() {
			// the read loop only exists to notice the client closing
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.unsubscribe(ch)
					return
				}
			}
		}()

		if err := conn.WriteJSON(h.Snapshot()); err != nil {
			return
		}
		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
