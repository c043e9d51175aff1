package api

import (
	"context"
	"net/http"
	"sort"

	"world-chat/internal/presence"
	"world-chat/internal/types"

	"github.com/rs/zerolog"
)

// PresenceHandler serves GET /api/presence with the online count and members,
// or with ?identity= whether that one identity is online.
func PresenceHandler(store presence.Store, log zerolog.Logger) http.HandlerFunc {
	log = log.With().Str("component", "presence-api").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		if identity := r.URL.Query().Get("identity"); identity != "" {
			online, err := store.IsOnline(ctx, identity)
			if err != nil {
				log.Error().Err(err).Str("identity", identity).Msg("presence lookup failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, types.IdentityPresenceResponse{Identity: identity, Online: online})
			return
		}

		members, err := store.Members(ctx)
		if err != nil {
			log.Error().Err(err).Msg("presence members failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if members == nil {
			members = []string{}
		}
		sort.Strings(members)
		writeJSON(w, http.StatusOK, types.PresenceResponse{Count: len(members), Members: members})
	}
}
