package httpserver

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/domain"
	"dmchat/internal/presence"
	"dmchat/internal/service"
)

type userResponse struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	IsOnline  bool    `json:"is_online"`
}

func toUserResponse(u *domain.User, registry *presence.Registry) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		IsOnline:  registry.IsOnline(u.ID),
	}
}

func handleListUsers(userSvc *service.UserService, registry *presence.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 100 {
			limit = 100
		}

		users, err := userSvc.ListActive(r.Context(), offset, limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		res := make([]userResponse, 0, len(users))
		for _, u := range users {
			res = append(res, toUserResponse(u, registry))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleGetUser(userSvc *service.UserService, registry *presence.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}

		user, err := userSvc.GetByID(r.Context(), userID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if user == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user, registry))
	}
}
