package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"world-chat/internal/messaging"
	"world-chat/internal/models"
	"world-chat/internal/repository"
	"world-chat/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	requestTimeout      = 5 * time.Second
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HistoryHandler serves GET /api/messages?since=&afterId=&limit=&room=.
// Messages come back oldest first; nextSince and nextAfterId position the
// following page. since alone means strictly after that instant.
func HistoryHandler(messages repository.MessageRepo, pipeline *messaging.Pipeline, log zerolog.Logger) http.HandlerFunc {
	log = log.With().Str("component", "history").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		room := q.Get("room")
		if room == "" {
			room = models.GlobalRoom
		}

		var cursor repository.Cursor
		if raw := q.Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				http.Error(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
				return
			}
			cursor = repository.After(t)
		}
		if raw := q.Get("afterId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil || cursor.CreatedAt.IsZero() {
				http.Error(w, "afterId must be a uuid and needs since", http.StatusBadRequest)
				return
			}
			cursor.ID = id
		}

		limit := DefaultHistoryLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, MaxHistoryLimit)
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		msgs, err := messages.FetchSince(ctx, room, cursor, limit)
		if err != nil {
			log.Error().Err(err).Str("room", room).Msg("fetch failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		views, err := pipeline.Materialize(ctx, msgs)
		if err != nil {
			log.Error().Err(err).Str("room", room).Msg("materialize failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		resp := types.HistoryResponse{Messages: views}
		if n := len(msgs); n > 0 {
			last := msgs[n-1]
			resp.NextSince = &last.CreatedAt
			resp.NextAfterID = last.ID.String()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports 200 when every dependency answers a ping.
func HealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
	}
}
