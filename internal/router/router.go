package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"boldestate-backend/internal/handlers"
	"boldestate-backend/internal/middleware"
	"boldestate-backend/internal/websocket"
)

// Limits are per client IP.
type Limits struct {
	CreatePerMinute int
	SubmitPerMinute int
}

func New(
	jwtAuth *middleware.JWTAuth,
	conversationHandler *handlers.ConversationHandler,
	healthHandler *handlers.HealthHandler,
	wsHub *websocket.Hub,
	frontendURL string,
	limits Limits,
) (http.Handler, func()) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	createLimiter := middleware.NewRateLimiter(limits.CreatePerMinute, time.Minute)
	submitLimiter := middleware.NewRateLimiter(limits.SubmitPerMinute, time.Minute)
	stop := func() {
		createLimiter.Stop()
		submitLimiter.Stop()
	}

	// Health check
	r.Get("/health", healthHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket (token in query param)
		r.Get("/ws", wsHub.HandleWebSocket)

		r.Route("/conversations", func(r chi.Router) {
			r.With(createLimiter.Middleware).Post("/", conversationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Get("/", conversationHandler.Get)
				r.Delete("/", conversationHandler.Delete)
				r.Put("/input", conversationHandler.SetInput)
				r.With(submitLimiter.Middleware).Post("/messages", conversationHandler.PostMessage)
				r.Post("/quick-replies", conversationHandler.PickQuickReply)
				r.Post("/dictation/start", conversationHandler.StartDictation)
				r.Post("/dictation/stop", conversationHandler.StopDictation)
				r.Post("/messages/{messageID}/read-aloud", conversationHandler.ToggleReadAloud)
			})
		})
	})

	return r, stop
}
