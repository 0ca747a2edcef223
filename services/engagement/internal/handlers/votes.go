package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/platform/api"
	"github.com/example/forum-platform/internal/platform/auth"
	"github.com/example/forum-platform/internal/platform/httpserver"
	"github.com/example/forum-platform/services/engagement/internal/domain"
	"github.com/example/forum-platform/services/engagement/internal/service"
)

type voteRequest struct {
	Direction string `json:"direction"`
}

func targetFromRequest(r *http.Request) (domain.Target, error) {
	typ, err := domain.ParseTargetType(chi.URLParam(r, "target_type"))
	if err != nil {
		return domain.Target{}, err
	}
	return domain.Target{Type: typ, ID: strings.TrimSpace(chi.URLParam(r, "target_id"))}, nil
}

// Vote handles POST /v1/votes/{target_type}/{target_id}
func Vote(svc *service.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeError(w, r, log, domain.ErrUnauthenticated)
			return
		}
		target, err := targetFromRequest(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}

		var req voteRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}
		dir, err := domain.ParseDirection(req.Direction)
		if err != nil {
			writeError(w, r, log, err)
			return
		}

		tally, err := svc.Vote(r.Context(), userID, target, dir)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, tally)
	}
}

// GetTally handles GET /v1/votes/{target_type}/{target_id}
func GetTally(svc *service.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := targetFromRequest(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		viewerID, _ := auth.UserIDFromContext(r.Context())

		tally, err := svc.Tally(r.Context(), viewerID, target)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, tally)
	}
}
