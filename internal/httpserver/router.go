package httpserver

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"dmchat/internal/cache"
	"dmchat/internal/config"
	"dmchat/internal/delivery"
	"dmchat/internal/presence"
	"dmchat/internal/security"
	"dmchat/internal/service"
	"dmchat/internal/store/sqlite"
	"dmchat/internal/ws"
)

// NewRouter constructs the main HTTP router and wires repositories, the
// delivery pipeline, services, and middleware.
func NewRouter(
	cfg *config.Config,
	db *sql.DB,
	hub *ws.Hub,
	registry *presence.Registry,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
	lists *cache.ConversationLists,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Repositories
	userRepo := sqlite.NewUserRepo(db)
	convRepo := sqlite.NewConversationRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)

	// Delivery pipeline
	dispatcher := delivery.NewDispatcher(registry, hub, logger)
	state := delivery.NewStateMachine(msgRepo, registry, dispatcher, lists, logger)

	// Services
	authSvc := service.NewAuthService(userRepo, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(userRepo)
	convSvc := service.NewConversationService(convRepo, msgRepo, userRepo, state, dispatcher, registry, lists, logger)
	msgSvc := service.NewMessageService(convSvc, msgRepo, userRepo, state, dispatcher, registry, lists, logger, cfg.MaxContentLength)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc, logger))
			r.Post("/login", handleLogin(authSvc, logger))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, userRepo))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(userSvc, registry, logger))
				r.Get("/{userID}", handleGetUser(userSvc, registry, logger))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(convSvc, logger))
				r.Get("/{conversationID}", handleOpenConversation(convSvc, logger))
				r.Delete("/{conversationID}", handleDeleteConversation(convSvc, logger))
			})

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", handleSendMessage(msgSvc, logger))
				r.Get("/search", handleSearchMessages(msgSvc, logger))
				r.Put("/{messageID}", handleEditMessage(msgSvc, logger))
				r.Delete("/{messageID}", handleDeleteMessage(msgSvc, logger))
				r.Get("/{messageID}/status", handleMessageStatus(msgSvc, logger))
			})
		})
	})

	// WebSocket endpoint
	r.Get("/ws", ws.MakeHandler(hub, registry, tokenSvc, userRepo, convRepo, msgSvc, state, dispatcher, cfg.CORSOrigins, logger))

	return r
}
