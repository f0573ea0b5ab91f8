package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/fintrack/backend/src/config"
	"github.com/username/fintrack/backend/src/database"
	"github.com/username/fintrack/backend/src/handlers"
	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/models"
	"github.com/username/fintrack/backend/src/security"
	"github.com/username/fintrack/backend/src/services"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{
		JWTSecret:            "test-jwt-secret-key-of-sufficient-length",
		AccessTokenExpiry:    time.Hour,
		RefreshTokenExpiry:   7 * 24 * time.Hour,
		SSEHeartbeatInterval: 50 * time.Millisecond,
		DefaultCurrency:      "USD",
		EmailServiceProvider: "mock",
	}
	os.Exit(m.Run())
}

// newTestBackend spins up the real API against a fresh database so the client
// stack is exercised end to end.
func newTestBackend(t *testing.T) *httptest.Server {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "backend_test.db"))

	sessionCache := cache.New(config.Cfg.AccessTokenExpiry, 2*config.Cfg.AccessTokenExpiry)
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	notifier := services.NewNotifier()

	userHandler := handlers.NewUserHandler(authService, &services.MockEmailService{}, sessionCache)
	txHandler := handlers.NewTransactionHandler(notifier)
	sseHandler := handlers.NewSSEHandler(notifier, config.Cfg.SSEHeartbeatInterval)

	applyAuth := func(handler http.HandlerFunc) http.Handler {
		return userHandler.AuthMiddleware(handler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", userHandler.RegisterUserHandler)
	mux.HandleFunc("POST /api/auth/login", userHandler.LoginUserHandler)
	mux.Handle("POST /api/auth/logout", userHandler.AuthMiddleware(http.HandlerFunc(userHandler.LogoutUserHandler)))
	mux.Handle("GET /api/transactions", applyAuth(txHandler.HandleListTransactions))
	mux.Handle("POST /api/transactions", applyAuth(txHandler.HandleReplaceTransactions))
	mux.Handle("POST /api/transactions/add", applyAuth(txHandler.HandleAddTransaction))
	mux.Handle("DELETE /api/transactions/{id}", applyAuth(txHandler.HandleDeleteTransaction))
	mux.Handle("GET /api/sse/{userId}", applyAuth(sseHandler.HandleStream))
	mux.HandleFunc("GET /api/currencies", handlers.HandleGetCurrencies)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestLedger(t *testing.T, baseURL string) (*Ledger, *LocalStore) {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "localstore"))
	require.NoError(t, err)
	ledger, err := NewLedger(NewAPIClient(baseURL), store)
	require.NoError(t, err)
	ledger.SyncOpts = SyncOptions{
		FailureThreshold: 3,
		PollInterval:     50 * time.Millisecond,
		ReconnectBackoff: 10 * time.Millisecond,
	}
	t.Cleanup(ledger.Close)
	return ledger, store
}

func sampleTx(id string) models.Transaction {
	return models.Transaction{
		ID:          id,
		Description: "Book",
		Amount:      decimal.NewFromFloat(24.99),
		Kind:        models.KindExpense,
		Category:    "Leisure",
		OccurredAt:  "2024-05-20",
		Currency:    "USD",
	}
}

func registerViaLedger(t *testing.T, ledger *Ledger, email string) {
	t.Helper()
	require.NoError(t, ledger.Register(context.Background(), email, "password1234", ""))
}
