package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/plastmaid/internal/analytics"
)

const (
	feedWriteWait    = 10 * time.Second
	feedPongWait     = 60 * time.Second
	feedPingInterval = 25 * time.Second
	feedBuffer       = 64
)

type feedEvent struct {
	Type    string             `json:"type"`
	Summary *analytics.Summary `json:"summary,omitempty"`
	Record  *analytics.Record  `json:"record,omitempty"`
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, _ *http.Request) {
	if s.analytics == nil {
		respondJSON(w, http.StatusOK, analytics.Summary{})
		return
	}
	respondJSON(w, http.StatusOK, s.analytics.Summary())
}

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.analytics == nil {
		respondError(w, http.StatusNotFound, "session not found", "")
		return
	}
	rec, err := s.analytics.Get(id)
	if errors.Is(err, analytics.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "analytics lookup failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleAnalyticsWS streams a summary on connect and then one event per
// analytics write.
func (s *Server) handleAnalyticsWS(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		respondError(w, http.StatusServiceUnavailable, "analytics disabled", "")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.FeedConnected()
	defer s.metrics.FeedDisconnected()

	events, unsubscribe := s.analytics.Subscribe(feedBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	summary := s.analytics.Summary()
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteJSON(feedEvent{Type: "analytics_summary", Summary: &summary}); err != nil {
		return
	}

	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(feedEvent{Type: "analytics_record", Record: &rec}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}
