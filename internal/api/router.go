package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/inkwell-be/internal/api/handlers"
	"github.com/isdelr/inkwell-be/internal/auth"
	"github.com/isdelr/inkwell-be/internal/config"
	"github.com/isdelr/inkwell-be/internal/media"
	"github.com/isdelr/inkwell-be/internal/services"
	"github.com/isdelr/inkwell-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Users   services.UserServiceProvider
	Posts   services.PostServiceProvider
	Tags    services.TagServiceProvider
	Events  services.EventServiceProvider
	Issuer  *auth.Issuer
	Limiter *auth.LoginLimiter
	Media   *media.Store
	Hub     *websocket.Hub
	DB      handlers.Pinger
}

// NewRouter creates and configures a new Chi router.
func NewRouter(cfg *config.Config, deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	presenter := handlers.NewPresenter(deps.Media)
	userHandler := handlers.NewUserHandler(deps.Users, deps.Issuer, presenter)
	postHandler := handlers.NewPostHandler(deps.Posts, presenter)
	tagHandler := handlers.NewTagHandler(deps.Tags)
	eventHandler := handlers.NewEventHandler(deps.Events)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, cfg.CORSAllowedOrigins)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	r.Get("/health/", healthHandler.Get)
	r.Get("/ws/posts/", wsHandler.Serve)
	r.Handle(cfg.MediaURL+"*", mediaServer(cfg.MediaURL, deps.Media.Root()))

	// Public routes
	r.Post("/signup/", userHandler.Signup)
	r.With(deps.Limiter.Middleware).Post("/login/", userHandler.Login)
	r.Post("/token/refresh/", userHandler.Refresh)
	r.Get("/posts/", postHandler.GetAll)
	r.Get("/posts/{id}/", postHandler.Get)
	r.Get("/tags/", tagHandler.GetAll)

	// Routes that need a bearer access token
	r.Group(func(r chi.Router) {
		r.Use(deps.Issuer.Middleware)

		r.Get("/profile/{id}/", userHandler.GetProfile)
		r.Put("/profile/update/", userHandler.UpdateProfile)
		r.Patch("/profile/update/", userHandler.UpdateProfile)

		r.Post("/posts/create/", postHandler.Create)
		r.Put("/posts/{id}/update/", postHandler.Update)
		r.Patch("/posts/{id}/update/", postHandler.Update)
		r.Delete("/posts/{id}/delete/", postHandler.Delete)

		r.Get("/activity/", eventHandler.GetRecent)
	})

	return r
}

// mediaServer serves stored blobs. Directory listings are not exposed.
func mediaServer(prefix, root string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}

// requestLogger writes one zerolog line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := log.Info()
			if status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}
