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

type createCommentRequest struct {
	Text     string  `json:"text"`
	ParentID *string `json:"parent_id,omitempty"`
}

type threadResponse struct {
	Comments []domain.Node `json:"comments"`
}

type repliesResponse struct {
	Comments []domain.Comment `json:"comments"`
}

// CreateComment handles POST /v1/posts/{post_id}/comments
func CreateComment(svc *service.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeError(w, r, log, domain.ErrUnauthenticated)
			return
		}
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		var req createCommentRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		created, err := svc.AddComment(r.Context(), userID, postID, req.Text, req.ParentID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// GetThread handles GET /v1/posts/{post_id}/comments
func GetThread(svc *service.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		viewerID, _ := auth.UserIDFromContext(r.Context())

		nodes, err := svc.Thread(r.Context(), viewerID, postID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, threadResponse{Comments: nodes})
	}
}

// GetReplies handles GET /v1/comments/{comment_id}/replies
func GetReplies(svc *service.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		viewerID, _ := auth.UserIDFromContext(r.Context())

		replies, err := svc.Replies(r.Context(), viewerID, commentID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, repliesResponse{Comments: replies})
	}
}

// DeleteComment handles DELETE /v1/comments/{comment_id}
func DeleteComment(svc *service.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeError(w, r, log, domain.ErrUnauthenticated)
			return
		}
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))

		res, err := svc.DeleteComment(r.Context(), userID, commentID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}
