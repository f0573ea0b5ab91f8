package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/models"
)

// StorageMode names where the authoritative copy of the transaction data
// currently lives. Exactly one mode is active per ledger.
type StorageMode string

const (
	// ModeTransient keeps transactions in process memory only. Losing them on
	// teardown is acceptable; nothing was ever durably committed.
	ModeTransient StorageMode = "transient"
	// ModeLocal additionally persists every change to the local store.
	ModeLocal StorageMode = "local"
	// ModeRemote delegates reads and writes to the server; the only mode with
	// multi-device consistency.
	ModeRemote StorageMode = "remote"
)

// ErrBusy guards destructive actions while an authoritative load is in
// flight.
var ErrBusy = errors.New("a load is in flight, retry shortly")

// Ledger is the client-side owner of the user's transaction set. It decides
// where writes land based on the active storage mode and migrates data
// between tiers on login, logout and persistence opt-in.
type Ledger struct {
	api   *APIClient
	local *LocalStore

	// SyncOpts is copied to the syncer created on login. Adjust before the
	// first Login call; tests shrink the intervals.
	SyncOpts SyncOptions

	mu           sync.Mutex
	mode         StorageMode
	transactions []models.Transaction
	identity     *Identity
	syncer       *Syncer
	loading      bool
}

// NewLedger starts in transient mode, or resumes local mode when the local
// store already holds a persisted transaction set.
func NewLedger(api *APIClient, local *LocalStore) (*Ledger, error) {
	l := &Ledger{
		api:      api,
		local:    local,
		SyncOpts: DefaultSyncOptions(),
		mode:     ModeTransient,
	}
	txs, ok, err := local.LoadTransactions()
	if err != nil {
		return nil, err
	}
	if ok {
		l.mode = ModeLocal
		l.transactions = txs
	}
	return l, nil
}

func (l *Ledger) Mode() StorageMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

func (l *Ledger) Identity() *Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.identity
}

// Transactions returns a copy of the current set.
func (l *Ledger) Transactions() []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// Add records a new transaction in whatever tier is active.
func (l *Ledger) Add(ctx context.Context, tx models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loading {
		return ErrBusy
	}
	for _, existing := range l.transactions {
		if existing.ID == tx.ID {
			return fmt.Errorf("%w: %s", models.ErrDuplicateID, tx.ID)
		}
	}

	switch l.mode {
	case ModeRemote:
		if err := l.api.AddTransaction(ctx, tx); err != nil {
			return err
		}
		l.transactions = append(l.transactions, tx)
	case ModeLocal:
		l.transactions = append(l.transactions, tx)
		if err := l.local.SaveTransactions(l.transactions); err != nil {
			l.transactions = l.transactions[:len(l.transactions)-1]
			return err
		}
	default:
		l.transactions = append(l.transactions, tx)
	}
	return nil
}

// Delete removes a transaction by id from the active tier.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loading {
		return ErrBusy
	}

	idx := -1
	for i, tx := range l.transactions {
		if tx.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: transaction %s", models.ErrNotFound, id)
	}

	switch l.mode {
	case ModeRemote:
		if err := l.api.DeleteTransaction(ctx, id); err != nil {
			return err
		}
		l.transactions = append(l.transactions[:idx], l.transactions[idx+1:]...)
	case ModeLocal:
		remaining := append(append([]models.Transaction{}, l.transactions[:idx]...), l.transactions[idx+1:]...)
		if err := l.local.SaveTransactions(remaining); err != nil {
			return err
		}
		l.transactions = remaining
	default:
		l.transactions = append(l.transactions[:idx], l.transactions[idx+1:]...)
	}
	return nil
}

// EnablePersistence opts the unauthenticated session into local storage,
// immediately persisting the in-memory set. A no-op when already local; not
// meaningful in remote mode.
func (l *Ledger) EnablePersistence() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.mode {
	case ModeLocal:
		return nil
	case ModeRemote:
		return errors.New("persistence is implicit while authenticated")
	}
	if err := l.local.SaveTransactions(l.transactions); err != nil {
		return err
	}
	l.mode = ModeLocal
	return nil
}

// Login authenticates and migrates data to the remote tier. From local mode
// with data present, the local set is uploaded as a full replace before the
// mode flips; the upload overwrites anything a concurrent session wrote
// remotely since (last write wins, by design). From transient mode the remote
// set is loaded as-is.
func (l *Ledger) Login(ctx context.Context, email, password string) error {
	identity, err := l.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return l.enterRemote(ctx, identity)
}

// Register creates an account and performs the same migration as Login.
func (l *Ledger) Register(ctx context.Context, email, password, defaultCurrency string) error {
	identity, err := l.api.Register(ctx, email, password, defaultCurrency)
	if err != nil {
		return err
	}
	return l.enterRemote(ctx, identity)
}

func (l *Ledger) enterRemote(ctx context.Context, identity *Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode == ModeLocal && len(l.transactions) > 0 {
		// Full-set replace. Must run to completion before the mode flips so
		// a failed upload leaves the local tier authoritative.
		if err := l.api.ReplaceTransactions(ctx, l.transactions); err != nil {
			l.api.ClearToken()
			return fmt.Errorf("uploading local transactions: %w", err)
		}
		if err := l.local.ClearTransactions(); err != nil {
			logger.L.Warn("Failed to clear local transactions after upload", "error", err)
		}
	} else {
		txs, err := l.api.ListTransactions(ctx)
		if err != nil {
			l.api.ClearToken()
			return fmt.Errorf("loading remote transactions: %w", err)
		}
		l.transactions = txs
	}

	l.mode = ModeRemote
	l.identity = identity
	if err := l.local.SaveSession(identity); err != nil {
		logger.L.Warn("Failed to persist session", "error", err)
	}

	l.syncer = NewSyncer(l.api, identity.UserID, l.reloadFromRemote, l.SyncOpts)
	l.syncer.Start()
	return nil
}

// Logout clears the session and falls back to whichever durable tier
// remains: local if the store still holds data, otherwise transient empty.
func (l *Ledger) Logout(ctx context.Context) error {
	l.mu.Lock()
	syncer := l.syncer
	l.syncer = nil
	l.mu.Unlock()

	if syncer != nil {
		syncer.Stop()
	}
	if err := l.api.Logout(ctx); err != nil {
		// Best effort; the token is cleared regardless.
		logger.L.Warn("Logout request failed", "error", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.identity = nil
	if err := l.local.ClearSession(); err != nil {
		logger.L.Warn("Failed to clear persisted session", "error", err)
	}

	txs, ok, err := l.local.LoadTransactions()
	if err != nil {
		return err
	}
	if ok {
		l.mode = ModeLocal
		l.transactions = txs
	} else {
		l.mode = ModeTransient
		l.transactions = nil
	}
	return nil
}

// Close tears down the sync machinery without touching stored data.
func (l *Ledger) Close() {
	l.mu.Lock()
	syncer := l.syncer
	l.syncer = nil
	l.mu.Unlock()
	if syncer != nil {
		syncer.Stop()
	}
}

// SyncState reports the orchestrator's state, or StateStopped when no sync
// session is active.
func (l *Ledger) SyncState() SyncState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.syncer == nil {
		return StateStopped
	}
	return l.syncer.State()
}

// reloadFromRemote replaces the in-memory set with the server's authoritative
// copy. On failure the cached set is kept so the caller degrades to stale
// data instead of a blank view.
func (l *Ledger) reloadFromRemote() {
	l.mu.Lock()
	if l.mode != ModeRemote {
		l.mu.Unlock()
		return
	}
	l.loading = true
	l.mu.Unlock()

	txs, err := l.api.ListTransactions(context.Background())

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	if err != nil {
		logger.L.Warn("Authoritative reload failed, keeping cached set", "error", err)
		return
	}
	if l.mode == ModeRemote {
		l.transactions = txs
	}
}
