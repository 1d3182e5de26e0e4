package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/service"
)

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func handleSendMessage(msgSvc *service.MessageService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		msg, err := msgSvc.Send(r.Context(), currentUser.ID, req.ReceiverID, req.Content)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, service.ToMessageResponse(msg))
	}
}

func handleEditMessage(msgSvc *service.MessageService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		msgID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
			return
		}
		var req editMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		msg, err := msgSvc.Edit(r.Context(), msgID, currentUser.ID, req.Content)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, service.ToMessageResponse(msg))
	}
}

func handleDeleteMessage(msgSvc *service.MessageService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		msgID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
			return
		}

		if err := msgSvc.Delete(r.Context(), msgID, currentUser.ID); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
	}
}

func handleMessageStatus(msgSvc *service.MessageService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		msgID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
			return
		}

		status, err := msgSvc.Status(r.Context(), msgID, currentUser.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleSearchMessages(msgSvc *service.MessageService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		results, err := msgSvc.Search(r.Context(), currentUser.ID, r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}
