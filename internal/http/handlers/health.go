package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if a.Config != nil {
		resp["models_configured"] = a.Config.HasModelCredentials()
	}
	a.json(w, http.StatusOK, resp)
}
