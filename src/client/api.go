package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/username/fintrack/backend/src/models"
)

var (
	// ErrUnauthorized covers missing, expired, and rejected tokens. The
	// server's 7-day session expiry surfaces here as well; callers react by
	// re-authenticating, not by inspecting the token.
	ErrUnauthorized = errors.New("authentication required or expired")
	ErrConflict     = errors.New("duplicate transaction id")
	ErrTransport    = errors.New("transport failure")
)

// Identity is the server's answer to a successful login or registration.
type Identity struct {
	Email           string `json:"email"`
	Token           string `json:"token"`
	UserID          int64  `json:"userId"`
	DefaultCurrency string `json:"defaultCurrency"`
}

// APIClient is a thin typed wrapper over the REST API. Safe for concurrent
// use; the bearer token is guarded so the syncer and the ledger can share one
// client.
type APIClient struct {
	baseURL string
	http    *http.Client
	// Streaming requests must not inherit the request timeout; the SSE
	// response stays open for the life of the session.
	streamHTTP *http.Client

	mu    sync.RWMutex
	token string
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 15 * time.Second},
		streamHTTP: &http.Client{},
	}
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *APIClient) ClearToken() {
	c.SetToken("")
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
		}
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	default:
		return fmt.Errorf("server rejected request (%d): %s", resp.StatusCode, msg)
	}
}

func (c *APIClient) Register(ctx context.Context, email, password, defaultCurrency string) (*Identity, error) {
	var identity Identity
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email":           email,
		"password":        password,
		"defaultCurrency": defaultCurrency,
	}, &identity)
	if err != nil {
		return nil, err
	}
	c.SetToken(identity.Token)
	return &identity, nil
}

func (c *APIClient) Login(ctx context.Context, email, password string) (*Identity, error) {
	var identity Identity
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &identity)
	if err != nil {
		return nil, err
	}
	c.SetToken(identity.Token)
	return &identity, nil
}

func (c *APIClient) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.ClearToken()
	return err
}

// ListTransactions drains every page of the user's transaction set.
func (c *APIClient) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	const pageSize = 200
	all := []models.Transaction{}
	for page := 1; ; page++ {
		var resp struct {
			Transactions []models.Transaction `json:"transactions"`
			Total        int                  `json:"total"`
		}
		path := fmt.Sprintf("/api/transactions?page=%d&limit=%d", page, pageSize)
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Transactions...)
		if len(all) >= resp.Total || len(resp.Transactions) == 0 {
			return all, nil
		}
	}
}

// ReplaceTransactions uploads the full set, overwriting whatever the server
// holds for this user.
func (c *APIClient) ReplaceTransactions(ctx context.Context, txs []models.Transaction) error {
	return c.do(ctx, http.MethodPost, "/api/transactions", map[string]interface{}{
		"transactions": txs,
	}, nil)
}

func (c *APIClient) AddTransaction(ctx context.Context, tx models.Transaction) error {
	return c.do(ctx, http.MethodPost, "/api/transactions/add", tx, nil)
}

func (c *APIClient) DeleteTransaction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/transactions/"+id, nil, nil)
}

func (c *APIClient) Currencies(ctx context.Context) ([]string, error) {
	var resp struct {
		Currencies []string `json:"currencies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/currencies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Currencies, nil
}
