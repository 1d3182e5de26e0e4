package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dmchat/internal/delivery"
	"dmchat/internal/domain"
	"dmchat/internal/presence"
	"dmchat/internal/security"
	"dmchat/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns the HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or
// Sec-WebSocket-Protocol), registers presence, runs Sent->Received catch-up,
// then dispatches client events:
//   - send_message -> create message addressed to receiver_id
//   - mark_seen    -> raise one message to Seen (receiver only)
func MakeHandler(
	hub *Hub,
	registry *presence.Registry,
	tokens *security.TokenService,
	users domain.UserRepository,
	convs domain.ConversationRepository,
	msgSvc *service.MessageService,
	state *delivery.StateMachine,
	dispatcher *delivery.Dispatcher,
	allowedOrigins []string,
	logger *slog.Logger,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			http.Error(w, "invalid token subject", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByUsername(ctx, sub)
		if err != nil || user == nil || !user.IsActive {
			http.Error(w, "user not found or inactive", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		connID := uuid.NewString()
		hub.Register(connID, conn)
		first := registry.Connect(user.ID, connID)

		defer func() {
			// Disconnect before Unregister so a concurrent Notify does
			// not resolve a connection id the hub already dropped.
			last := registry.Disconnect(context.Background(), user.ID, connID)
			hub.Unregister(connID)
			if last {
				broadcastStatus(context.Background(), convs, dispatcher, user.ID, false, logger)
			}
		}()

		if first {
			// Offline -> online: deliver everything still pending, then
			// tell conversation peers this user came online. Additional
			// devices of an already-online user skip both.
			if err := state.CatchUp(ctx, user.ID); err != nil {
				logger.Error("catch-up", "user_id", user.ID, "error", err)
			}
			broadcastStatus(ctx, convs, dispatcher, user.ID, true, logger)
		}

		for {
			var payload map[string]any
			if err := conn.ReadJSON(&payload); err != nil {
				break
			}
			event, _ := payload["type"].(string)
			switch event {

			case "send_message":
				receiverIDf, _ := payload["receiver_id"].(float64)
				content, _ := payload["content"].(string)
				if receiverIDf == 0 {
					sendError(hub, connID, "send_message requires receiver_id")
					continue
				}
				msg, err := msgSvc.Send(ctx, user.ID, int64(receiverIDf), content)
				if err != nil {
					logger.Warn("ws send_message", "user_id", user.ID, "error", err)
					sendError(hub, connID, "failed to send message")
					continue
				}
				// Echo the stored message back so the sender renders it
				// with its final id and status. Goes through the hub so
				// the write serializes with dispatcher pushes.
				_ = hub.SendToConnection(connID, "MessageSent", service.ToMessageResponse(msg))

			case "mark_seen":
				msgIDf, _ := payload["message_id"].(float64)
				if msgIDf == 0 {
					sendError(hub, connID, "mark_seen requires message_id")
					continue
				}
				if err := state.MarkMessageSeen(ctx, int64(msgIDf), user.ID); err != nil {
					logger.Warn("ws mark_seen", "user_id", user.ID, "message_id", int64(msgIDf), "error", err)
					sendError(hub, connID, "failed to mark message as seen")
					continue
				}

			default:
				logger.Debug("unknown ws event", "type", event, "user_id", user.ID)
			}
		}
	}
}

// broadcastStatus tells every online conversation peer that the user changed
// online state.
func broadcastStatus(
	ctx context.Context,
	convs domain.ConversationRepository,
	dispatcher *delivery.Dispatcher,
	userID int64,
	online bool,
	logger *slog.Logger,
) {
	conversations, err := convs.ListForUser(ctx, userID)
	if err != nil {
		logger.Warn("list conversations for status broadcast", "user_id", userID, "error", err)
		return
	}
	seen := make(map[int64]struct{}, len(conversations))
	for _, c := range conversations {
		peerID := c.PeerOf(userID)
		if _, done := seen[peerID]; done {
			continue
		}
		seen[peerID] = struct{}{}
		dispatcher.Notify(peerID, delivery.EventUserStatusChanged, delivery.StatusPayload{
			UserID: userID,
			Online: online,
		})
	}
}

func sendError(hub *Hub, connID, msg string) {
	_ = hub.SendToConnection(connID, "Error", map[string]string{"message": msg})
}
