package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/consultationhouse/site/backend/internal/handler/chat"
	"github.com/consultationhouse/site/backend/internal/handler/persona"
	"github.com/consultationhouse/site/backend/internal/handler/socket"
	"github.com/consultationhouse/site/backend/internal/handler/stream"
	middlewarePkg "github.com/consultationhouse/site/backend/internal/middleware"
	personaModel "github.com/consultationhouse/site/backend/internal/model/persona"
	chatService "github.com/consultationhouse/site/backend/internal/service/chat"
	"github.com/consultationhouse/site/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, events stream.Subscriber) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"widgets": chatSvc.Count(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(personas).RegisterRoutes(api)
		chat.New(chatSvc).RegisterRoutes(api)

		// Live updates are optional; REST alone drives the widget.
		if events != nil {
			stream.New(chatSvc, events).RegisterRoutes(api)
			socket.New(chatSvc, events).RegisterRoutes(api)
		}
	})

	return r
}
