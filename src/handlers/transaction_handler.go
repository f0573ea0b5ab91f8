package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/username/fintrack/backend/src/database"
	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/models"
	"github.com/username/fintrack/backend/src/security/validation"
	"github.com/username/fintrack/backend/src/services"
	"github.com/username/fintrack/backend/src/utils"
)

type TransactionHandler struct {
	notifier *services.Notifier
}

func NewTransactionHandler(notifier *services.Notifier) *TransactionHandler {
	return &TransactionHandler{notifier: notifier}
}

type transactionListResponse struct {
	Transactions []models.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
	Total        int                  `json:"total"`
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	transactions, total, err := models.ListTransactions(database.DB, userID, filter)
	if err != nil {
		logger.L.Error("Error querying transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error querying transactions", http.StatusInternalServerError)
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	utils.SendJSON(w, transactionListResponse{
		Transactions: transactions,
		Page:         page,
		Limit:        limit,
		Total:        total,
	}, http.StatusOK)
}

func parseTransactionFilter(r *http.Request) (models.TransactionFilter, error) {
	q := r.URL.Query()
	var filter models.TransactionFilter

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, fmt.Errorf("invalid page %q", v)
		}
		filter.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = limit
	}
	if v := q.Get("currency"); v != "" {
		if !models.IsSupportedCurrency(v) {
			return filter, fmt.Errorf("unsupported currency %q", v)
		}
		filter.Currency = v
	}
	if v := q.Get("type"); v != "" {
		if !models.TransactionKind(v).Valid() {
			return filter, fmt.Errorf("invalid type %q, expected income or expense", v)
		}
		filter.Kind = v
	}
	if v := q.Get("startDate"); v != "" {
		if _, err := models.ParseDate(v); err != nil {
			return filter, fmt.Errorf("invalid startDate %q", v)
		}
		filter.StartDate = v
	}
	if v := q.Get("endDate"); v != "" {
		if _, err := models.ParseDate(v); err != nil {
			return filter, fmt.Errorf("invalid endDate %q", v)
		}
		filter.EndDate = v
	}
	return filter, nil
}

// HandleReplaceTransactions swaps the caller's entire transaction set.
// Last write wins: a set uploaded here overwrites anything written remotely
// since the caller last loaded.
func (h *TransactionHandler) HandleReplaceTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		Transactions []models.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	for i := range body.Transactions {
		cleanTransaction(&body.Transactions[i])
		if err := body.Transactions[i].Validate(); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := models.ReplaceTransactions(database.DB, userID, body.Transactions); err != nil {
		if errors.Is(err, models.ErrDuplicateID) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.L.Error("Error replacing transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error replacing transactions", http.StatusInternalServerError)
		return
	}

	h.notifier.Publish(userID)
	utils.SendJSON(w, map[string]int{"count": len(body.Transactions)}, http.StatusOK)
}

func (h *TransactionHandler) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var tx models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cleanTransaction(&tx)
	if err := tx.Validate(); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := models.InsertTransaction(database.DB, userID, tx); err != nil {
		if errors.Is(err, models.ErrDuplicateID) {
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		logger.L.Error("Error inserting transaction", "userID", userID, "txID", tx.ID, "error", err)
		utils.SendJSONError(w, "Error inserting transaction", http.StatusInternalServerError)
		return
	}

	h.notifier.Publish(userID)
	utils.SendJSON(w, tx, http.StatusCreated)
}

func (h *TransactionHandler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		utils.SendJSONError(w, "transaction id is required", http.StatusBadRequest)
		return
	}

	if err := models.DeleteTransaction(database.DB, userID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.L.Error("Error deleting transaction", "userID", userID, "txID", id, "error", err)
		utils.SendJSONError(w, "Error deleting transaction", http.StatusInternalServerError)
		return
	}

	h.notifier.Publish(userID)
	w.WriteHeader(http.StatusNoContent)
}

func cleanTransaction(tx *models.Transaction) {
	tx.Description = validation.CleanFreeText(tx.Description)
	tx.Category = validation.CleanFreeText(tx.Category)
}
