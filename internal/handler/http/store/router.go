package store_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"musicstore/internal/domain"
	"musicstore/internal/metrics"
)

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// NewRouter builds the public HTTP surface with the shared middleware stack.
func NewRouter(cfg RouterConfig, s Services, l *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, l.With(zap.String("component", "RateLimiter")))
	RegisterRoutes(r, s, cfg.JWTSecret, limiter, l)
	return r
}

func RegisterRoutes(r chi.Router, s Services, jwtSecret string, limiter *RateLimiter, l *zap.Logger) {
	handler := NewStoreHandler(s, l.With(zap.String("component", "StoreHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Musicstore service is healthy!"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret, l.With(zap.String("component", "AuthMiddleware"))))
		r.Use(limiter.Handler)

		r.Route("/tracks", func(r chi.Router) {
			r.Get("/", handler.ListTracksHandler)
			r.Post("/{id}/buy", handler.BuyTrackHandler)
			r.Post("/{id}/buy/{paymentID}", handler.BuyTrackHandler)
			r.Post("/{id}/like", handler.LikeTrackHandler)
			r.Delete("/{id}/like", handler.UnlikeTrackHandler)
			r.Post("/{id}/listen", handler.ListenTrackHandler)
			r.Get("/{id}/likes", handler.TrackStatsHandler)
		})

		r.Route("/albums", func(r chi.Router) {
			r.Get("/", handler.ListAlbumsHandler)
			r.Post("/{id}/buy", handler.BuyAlbumHandler)
			r.Post("/{id}/buy/{paymentID}", handler.BuyAlbumHandler)
		})

		r.Route("/account", func(r chi.Router) {
			r.Get("/", handler.GetAccountHandler)
			r.Post("/topup", handler.TopUpHandler)
		})

		r.Get("/transactions", handler.ListTransactionsHandler)

		r.Route("/bought", func(r chi.Router) {
			r.Get("/tracks", handler.boughtHandler(domain.ItemKindTrack))
			r.Get("/albums", handler.boughtHandler(domain.ItemKindAlbum))
		})

		r.Route("/payment-methods", func(r chi.Router) {
			r.Get("/", handler.ListPaymentMethodsHandler)
			r.Post("/", handler.CreatePaymentMethodHandler)
			r.Post("/{id}/default", handler.SetDefaultPaymentMethodHandler)
			r.Delete("/{id}", handler.DeletePaymentMethodHandler)
		})
	})
}
