package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the HTTP routes of the profile API
func RegisterRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	// Walks the referral network now; slow for large networks
	r.HandleFunc("/profiles/{address}", h.GetProfile).Methods("GET")

	// Last committed profile, no chain reads
	r.HandleFunc("/profiles/{address}/cached", h.GetCachedProfile).Methods("GET")
}

// NewRouter returns a router with every route registered
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	RegisterRoutes(r, h)
	return r
}
