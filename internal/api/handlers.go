package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/repository"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ProfileGenerator builds a profile on demand, returning failures as fail-closed profiles
type ProfileGenerator interface {
	Generate(ctx context.Context, root entity.Address, reader service.ChainReader) *entity.Profile
}

// Handler contains the HTTP handlers for the profile API
type Handler struct {
	generator ProfileGenerator
	reader    service.ChainReader
	store     repository.ProfileRepository
	logger    *logger.Logger
}

// NewHandler creates a new Handler. store may be nil when caching is disabled.
func NewHandler(generator ProfileGenerator, reader service.ChainReader, store repository.ProfileRepository, logger *logger.Logger) *Handler {
	return &Handler{
		generator: generator,
		reader:    reader,
		store:     store,
		logger:    logger.WithComponent("http-api"),
	}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetProfile walks the referral network of the path address and returns the profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	root, ok := h.rootFromPath(w, r)
	if !ok {
		return
	}

	profile := h.generator.Generate(r.Context(), root, h.reader)
	if profile.Error != "" {
		h.logger.Warn("Profile build failed",
			zap.String("root", root.String()),
			zap.String("error", profile.Error))
		writeJSON(w, http.StatusBadGateway, profile)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// GetCachedProfile returns the last committed profile of the path address
func (h *Handler) GetCachedProfile(w http.ResponseWriter, r *http.Request) {
	root, ok := h.rootFromPath(w, r)
	if !ok {
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "profile cache is disabled")
		return
	}

	profile, err := h.store.GetProfile(r.Context(), root)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "no cached profile")
			return
		}
		h.logger.Error("Failed to read cached profile",
			zap.String("root", root.String()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read cached profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) rootFromPath(w http.ResponseWriter, r *http.Request) (entity.Address, bool) {
	root := entity.NormalizeAddress(mux.Vars(r)["address"])
	if !root.IsValid() || root.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid address")
		return "", false
	}
	return root, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
