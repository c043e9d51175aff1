package chat

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"world-chat/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type HandlerConfig struct {
	Pump           PumpConfig
	SendBuffer     int
	AllowedOrigins []string
}

// NewUpgrader accepts same-host origins, plus any in allowed. A "*" entry
// disables the check.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	wildcard := lo.Contains(allowed, "*")
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if strings.EqualFold(u.Host, r.Host) {
				return true
			}
			return lo.ContainsBy(allowed, func(a string) bool {
				return strings.EqualFold(strings.TrimRight(a, "/"), origin)
			})
		},
	}
}

// ServeWS upgrades the request and drives the connection until it ends. The
// principal, if any, was attached by the auth middleware.
func ServeWS(d *Dispatcher, cfg HandlerConfig, log zerolog.Logger) http.HandlerFunc {
	upgrader := NewUpgrader(cfg.AllowedOrigins)
	wsLog := log.With().Str("component", "ws").Logger()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			wsLog.Warn().Err(err).Str("ip", middleware.ClientIP(r)).Msg("upgrade failed")
			return
		}

		principal, _ := middleware.PrincipalFrom(r.Context())
		client := NewClient(conn, cfg.SendBuffer, principal, log)
		d.Connect(client)

		go client.WritePump(cfg.Pump)
		// the request context would be cancelled once this handler returns;
		// the disconnect path still needs to reach the stores
		client.ReadPump(context.WithoutCancel(r.Context()), d, cfg.Pump)
	}
}
