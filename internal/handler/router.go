package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"finboard/internal/audit"
	"finboard/internal/auth"
	"finboard/internal/cache"
	"finboard/internal/config"
	"finboard/internal/models"
	"finboard/internal/service"
	"finboard/internal/util"
)

// Deps carries everything the router needs to assemble the HTTP surface.
type Deps struct {
	Config        *config.Config
	Gate          *auth.Gate
	Recorder      *audit.Recorder
	TokenManager  *auth.TokenManager
	Accounts      *service.AccountService
	Stocks        *service.StockService
	Watchlists    *service.WatchlistService
	Notifications *service.NotificationService
	Activity      *service.ActivityService
	Cache         *cache.Cache
}

// requireHTTPS rejects any request that wasn't made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"success":false,"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(deps Deps, logger *zap.Logger) chi.Router {
	authHandler := NewAuthHandler(deps.Accounts, deps.TokenManager, deps.Recorder, logger)
	accountHandler := NewAccountHandler(deps.Accounts, logger)
	watchlistHandler := NewWatchlistHandler(deps.Watchlists, logger)
	stockHandler := NewStockHandler(deps.Stocks, logger)
	notificationHandler := NewNotificationHandler(deps.Notifications, logger)
	adminHandler := NewAdminHandler(deps.Accounts, deps.Activity, deps.Stocks, deps.Cache, logger)

	router := chi.NewRouter()

	if deps.Config.Server.EnableTLS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	allowedOrigins := []string{"https://*"}
	if deps.Config.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://*")
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"finboard"}`))
	})

	rec := deps.Recorder

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.RequireUser)

			r.Route("/account", func(r chi.Router) {
				r.Get("/me", accountHandler.Me)
				r.With(rec.Observe(models.ActionUpdateProfile, nil)).
					Put("/profile", accountHandler.UpdateProfile)
				r.Get("/onboarding", accountHandler.GetOnboarding)
				r.With(rec.Observe(models.ActionSaveOnboarding, nil)).
					Put("/onboarding", accountHandler.SaveOnboarding)

				r.Route("/password", func(r chi.Router) {
					r.With(rec.Observe(models.ActionPasswordRequest, nil)).
						Post("/request-change", accountHandler.RequestPasswordChange)
					r.Post("/verify-code", accountHandler.VerifyPasswordCode)
					r.With(rec.Observe(models.ActionPasswordChange, nil)).
						Post("/change", accountHandler.ChangePassword)
				})
			})

			r.Route("/watchlist", func(r chi.Router) {
				r.Get("/", watchlistHandler.List)
				r.With(rec.Observe(models.ActionWatchlistAdd, nil)).
					Post("/", watchlistHandler.Add)
				r.With(rec.Observe(models.ActionWatchlistRemove, symbolDetails)).
					Delete("/{symbol}", watchlistHandler.Remove)
			})

			r.Route("/stocks", func(r chi.Router) {
				r.Get("/quote/{symbol}", stockHandler.GetQuote)
				r.Get("/search", stockHandler.Search)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.With(rec.Observe(models.ActionNotificationRead, notificationDetails)).
					Post("/{notificationID}/read", notificationHandler.MarkRead)
			})
		})

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.RequireAdmin)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/users/{userID}", adminHandler.GetUser)
				r.Get("/users/{userID}/activity", adminHandler.GetUserActivity)
				r.Get("/activity/stats", adminHandler.GetActivityStats)
				r.With(rec.Observe(models.ActionCacheInvalidate, nil)).
					Post("/cache/invalidate", adminHandler.InvalidateCache)
				r.With(rec.Observe(models.ActionInstrumentUpsert, nil)).
					Put("/instruments", adminHandler.UpsertInstrument)
			})
		})
	})

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"error":"method not allowed"}`))
	})

	return router
}

func symbolDetails(r *http.Request) map[string]string {
	return map[string]string{"symbol": chi.URLParam(r, "symbol")}
}

func notificationDetails(r *http.Request) map[string]string {
	return map[string]string{"notification_id": chi.URLParam(r, "notificationID")}
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
