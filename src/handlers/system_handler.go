package handlers

import (
	"net/http"

	"github.com/username/fintrack/backend/src/database"
	"github.com/username/fintrack/backend/src/models"
	"github.com/username/fintrack/backend/src/utils"
)

func HandleGetCurrencies(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, map[string][]string{"currencies": models.SupportedCurrencies}, http.StatusOK)
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := database.DB.Ping(); err != nil {
		utils.SendJSON(w, map[string]string{"status": "degraded", "database": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
