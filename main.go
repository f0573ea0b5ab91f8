package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fintrack/backend/src/config"
	"github.com/username/fintrack/backend/src/database"
	"github.com/username/fintrack/backend/src/handlers"
	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/security"
	"github.com/username/fintrack/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Fintrack backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing session cache...")
	sessionCache := cache.New(config.Cfg.AccessTokenExpiry, 2*config.Cfg.AccessTokenExpiry)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	notifier := services.NewNotifier()

	recurrenceEngine := services.NewRecurrenceEngine(database.DB, notifier)
	scheduler := services.NewRecurrenceScheduler(recurrenceEngine, config.Cfg.RecurrenceInterval)
	scheduler.Start()

	userHandler := handlers.NewUserHandler(authService, emailService, sessionCache)
	txHandler := handlers.NewTransactionHandler(notifier)
	recurringHandler := handlers.NewRecurringHandler()
	sseHandler := handlers.NewSSEHandler(notifier, config.Cfg.SSEHeartbeatInterval)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/auth/register", userHandler.RegisterUserHandler)
	apiRouter.HandleFunc("POST /api/auth/login", userHandler.LoginUserHandler)
	apiRouter.Handle("POST /api/auth/logout", userHandler.AuthMiddleware(http.HandlerFunc(userHandler.LogoutUserHandler)))

	applyAuth := func(handler http.HandlerFunc) http.Handler {
		return userHandler.AuthMiddleware(handler)
	}

	apiRouter.Handle("GET /api/transactions", applyAuth(txHandler.HandleListTransactions))
	apiRouter.Handle("POST /api/transactions", applyAuth(txHandler.HandleReplaceTransactions))
	apiRouter.Handle("POST /api/transactions/add", applyAuth(txHandler.HandleAddTransaction))
	apiRouter.Handle("DELETE /api/transactions/{id}", applyAuth(txHandler.HandleDeleteTransaction))

	apiRouter.Handle("GET /api/recurring-transactions", applyAuth(recurringHandler.HandleListRules))
	apiRouter.Handle("POST /api/recurring-transactions", applyAuth(recurringHandler.HandleCreateRule))
	apiRouter.Handle("PUT /api/recurring-transactions/{id}", applyAuth(recurringHandler.HandleUpdateRule))
	apiRouter.Handle("DELETE /api/recurring-transactions/{id}", applyAuth(recurringHandler.HandleDeleteRule))

	apiRouter.Handle("GET /api/sse/{userId}", applyAuth(sseHandler.HandleStream))

	apiRouter.HandleFunc("GET /api/currencies", handlers.HandleGetCurrencies)
	apiRouter.HandleFunc("GET /api/health", handlers.HandleHealth)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Fintrack Backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     finalHandler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the SSE endpoint holds its response open for the
		// life of the session.
		IdleTimeout: 60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		scheduler.Stop()
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		scheduler.Stop()
		logger.L.Info("Server stopped gracefully.")
	}
}
