package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liuxinyu/starlight/backend/internal/handler/chat"
	"github.com/liuxinyu/starlight/backend/internal/handler/persona"
	"github.com/liuxinyu/starlight/backend/internal/handler/stream"
	"github.com/liuxinyu/starlight/backend/internal/handler/ws"
	middlewarePkg "github.com/liuxinyu/starlight/backend/internal/middleware"
	personaModel "github.com/liuxinyu/starlight/backend/internal/model/persona"
	agentService "github.com/liuxinyu/starlight/backend/internal/service/agent"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, agentSvc *agentService.Service, graph *knowledge.Graph) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := persona.New(personas)
	chatHandler := chat.New(agentSvc, graph)
	streamHandler := stream.New(agentSvc)
	wsHandler := ws.New(agentSvc)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
