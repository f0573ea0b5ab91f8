package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/username/fintrack/backend/src/database"
	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/models"
	"github.com/username/fintrack/backend/src/security/validation"
	"github.com/username/fintrack/backend/src/utils"
)

type RecurringHandler struct{}

func NewRecurringHandler() *RecurringHandler {
	return &RecurringHandler{}
}

func (h *RecurringHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	rules, err := models.ListRules(database.DB, userID)
	if err != nil {
		logger.L.Error("Error querying recurring rules", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error querying recurring rules", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string][]models.RecurrenceRule{"recurringTransactions": rules}, http.StatusOK)
}

func (h *RecurringHandler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var rule models.RecurrenceRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cleanRule(&rule)
	if err := rule.Validate(); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rule.UserID = userID
	rule.NextDueDate = rule.StartDate
	rule.LastProcessed = ""
	if err := models.InsertRule(database.DB, &rule); err != nil {
		logger.L.Error("Error inserting recurring rule", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error inserting recurring rule", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, rule, http.StatusCreated)
}

func (h *RecurringHandler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	var rule models.RecurrenceRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cleanRule(&rule)
	if err := rule.Validate(); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rule.ID = id
	rule.UserID = userID
	if err := models.UpdateRule(database.DB, rule); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.L.Error("Error updating recurring rule", "userID", userID, "ruleID", id, "error", err)
		utils.SendJSONError(w, "Error updating recurring rule", http.StatusInternalServerError)
		return
	}

	updated, err := models.GetRule(database.DB, userID, id)
	if err != nil {
		utils.SendJSONError(w, "Error reloading recurring rule", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, updated, http.StatusOK)
}

// HandleDeleteRule soft-deletes: the row is flagged inactive so already
// materialized history stays attributable.
func (h *RecurringHandler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	if err := models.DeactivateRule(database.DB, userID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.L.Error("Error deactivating recurring rule", "userID", userID, "ruleID", id, "error", err)
		utils.SendJSONError(w, "Error deactivating recurring rule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func cleanRule(rule *models.RecurrenceRule) {
	rule.Description = validation.CleanFreeText(rule.Description)
	rule.Category = validation.CleanFreeText(rule.Category)
}
