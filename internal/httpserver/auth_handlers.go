package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"dmchat/internal/service"
)

type registerRequest struct {
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	AvatarURL *string `json:"avatar_url"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleRegister(authSvc *service.AuthService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		user, err := authSvc.Register(r.Context(), service.RegisterInput{
			Username:  req.Username,
			Password:  req.Password,
			AvatarURL: req.AvatarURL,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func handleLogin(authSvc *service.AuthService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		token, err := authSvc.Login(r.Context(), service.LoginInput{
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			// Login failures always read the same to the client.
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "incorrect username or password"})
			return
		}
		writeJSON(w, http.StatusOK, token)
	}
}
