package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/handler"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/console"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes. db may be nil when the console runs without Postgres.
func NewRouter(session *console.Session, db handler.HealthChecker, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip; event streams are left alone

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "Cache-Control", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Request-Id"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(session, cfg, db)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Tournament view
		r.Get("/view", h.GetView)
		r.Post("/tournaments", h.CreateTournament)
		r.Post("/tournaments/select", h.SelectTournament)
		r.Post("/tournaments/end", h.EndTournament)
		r.Patch("/matches/{matchID}", h.UpdateMatch)

		// Sponsor ads
		r.Post("/ads", h.AddAd)
		r.Delete("/ads/{adID}", h.DeleteAd)
		r.Post("/ads/{adID}/toggle", h.ToggleAd)

		// Commands and arbitration
		r.Post("/commands", h.SendCommand)
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/surface", h.GetSurface)
		r.Get("/arbitration", h.GetArbitration)
		r.Post("/arbitration/force", h.ForceArbitration)

		// Ad break, audio and playback
		r.Get("/adbreak", h.GetAdBreak)
		r.Post("/adbreak/override", h.OverrideAdBreak)
		r.Post("/adbreak/hide", h.HideAds)
		r.Post("/adbreak/ended", h.AdEnded)
		r.Get("/audio", h.GetAudio)
		r.Put("/audio/{deck}", h.SetDeckVolume)
		r.Post("/audio/force-fade", h.ForceFade)
		r.Post("/player/events", h.PlayerEvent)

		// Live stream
		r.Get("/stream", h.Stream)

		// Settings
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
	})

	return r
}
