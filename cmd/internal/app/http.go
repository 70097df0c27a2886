package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerHTTP mounts the full HTTP surface on mux: health probes, metrics,
// the auth and chat APIs and the WebSocket gateway.
func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if a.cfg.ReadinessRequireDB && !a.dbEnabled {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db required but not configured\n"))
			return
		}

		if a.dbEnabled {
			if err := PingDB(r.Context(), a.dbPool, 2*time.Second); err != nil {
				a.log.Warn("readyz.db.fail", "err", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db not reachable\n"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	a.auth.Register(mux)
	a.chatAPI.Register(mux)

	mux.HandleFunc("GET /ws", a.ws.HandleWS)
}
