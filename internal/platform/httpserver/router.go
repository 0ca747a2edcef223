package httpserver

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/platform/api"
)

// RouterConfig tunes SetupRouter. The zero value is valid.
type RouterConfig struct {
	// ReadyFunc backs /readyz; a non-nil error answers 503.
	ReadyFunc func() error
	// Logger enables access logging when set.
	Logger *zap.Logger
}

// SetupRouter attaches base middlewares and common endpoints.
// IMPORTANT: must be called before registering any routes.
func SetupRouter(r chi.Router, cfg ...RouterConfig) {
	var rc RouterConfig
	if len(cfg) > 0 {
		rc = cfg[0]
	}

	r.Use(RequestIDMiddleware("X-Request-Id"))
	r.Use(middleware.Recoverer)
	if rc.Logger != nil {
		r.Use(AccessLog(rc.Logger))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if rc.ReadyFunc != nil {
			if err := rc.ReadyFunc(); err != nil {
				api.Unavailable(w, "NOT_READY", err.Error(), RequestIDFromContext(req.Context()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
}

// parseCORSOrigins splits a comma separated origin list. Empty means any origin.
func parseCORSOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
