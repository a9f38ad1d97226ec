package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webglow/voice-support/backend/internal/config"
	"github.com/webglow/voice-support/backend/internal/handler/calls"
	"github.com/webglow/voice-support/backend/internal/handler/leads"
	notifyHandler "github.com/webglow/voice-support/backend/internal/handler/notify"
	"github.com/webglow/voice-support/backend/internal/handler/relay"
	middlewarePkg "github.com/webglow/voice-support/backend/internal/middleware"
	notifyService "github.com/webglow/voice-support/backend/internal/service/notify"
	"github.com/webglow/voice-support/backend/internal/service/session"
	"github.com/webglow/voice-support/backend/internal/service/storage"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(sessions *session.Store, store storage.Storage, notifier *notifyService.Notifier, relayCfg config.RelayConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	callsHandler := calls.New(store)
	leadsHandler := leads.New(store)
	notifyH := notifyHandler.New(notifier)
	relayHandler := relay.New(sessions, relayCfg.ReconnectGrace)

	r.Route("/api", func(api chi.Router) {
		callsHandler.RegisterRoutes(api)
		leadsHandler.RegisterRoutes(api)
		notifyH.RegisterRoutes(api)
	})

	// The call-session relay lives outside /api; the widget dials ws(s)://host/ws/call.
	relayHandler.RegisterRoutes(r)

	return r
}
