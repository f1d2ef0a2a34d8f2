package handlers

import "net/http"

// HandleHealth handles GET /v1/health_check
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, ResponseTypeHealth, "I'm alive!")
}
