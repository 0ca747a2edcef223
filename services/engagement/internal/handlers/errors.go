package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/platform/api"
	"github.com/example/forum-platform/internal/platform/httpserver"
	"github.com/example/forum-platform/services/engagement/internal/domain"
)

// writeError maps a service error onto the HTTP error envelope.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		api.Unauthorized(w, "UNAUTHENTICATED", "authentication required", rid)
	case errors.Is(err, domain.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "not found", rid)
	case errors.Is(err, domain.ErrUnauthorized):
		api.Forbidden(w, "FORBIDDEN", "only the author may do this", rid)
	case errors.Is(err, domain.ErrCommentingDisabled):
		api.Conflict(w, "COMMENTING_DISABLED", "commenting is disabled for this post", rid, nil)
	case errors.Is(err, domain.ErrInvalidParent):
		api.BadRequest(w, "INVALID_PARENT", "parent comment does not exist on this post", rid, nil)
	case errors.Is(err, domain.ErrInvalidDirection):
		api.BadRequest(w, "INVALID_DIRECTION", "direction must be up or down", rid, nil)
	case errors.Is(err, domain.ErrInvalidInput):
		api.BadRequest(w, "INVALID_INPUT", err.Error(), rid, nil)
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
	default:
		if log != nil {
			log.Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", rid),
				zap.Error(err))
		}
		api.Internal(w, rid)
	}
}
