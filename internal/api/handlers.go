package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/reels/internal/db"
	"github.com/bobarin/reels/internal/models"
)

const (
	maxScriptChars      = 5000
	signedURLExpirySecs = 3600
)

// ReelStore is the persistence the API needs; implemented by db.DB.
type ReelStore interface {
	CreateReel(ctx context.Context, job *models.ReelJob) error
	GetReel(ctx context.Context, id uuid.UUID) (*models.ReelJob, error)
	ListReels(ctx context.Context, status string, limit, offset int) ([]models.ReelJob, error)
	CountReels(ctx context.Context, status string) (int, error)
	RequestCancel(ctx context.Context, id uuid.UUID) (models.ReelStatus, error)
}

// JobQueue is implemented by queue.Queue.
type JobQueue interface {
	EnqueueRenderReel(ctx context.Context, reelID uuid.UUID) error
	RequestCancel(ctx context.Context, reelID uuid.UUID) error
}

type URLSigner interface {
	GetSignedURL(ctx context.Context, storagePath string, expiresIn int) (string, error)
}

type Handler struct {
	db      ReelStore
	queue   JobQueue
	storage URLSigner
	pathFor func(uuid.UUID) string
}

// NewHandler wires the handlers. pathFor maps a reel to its storage object
// path (storage.ReelPath in production).
func NewHandler(database ReelStore, q JobQueue, stor URLSigner, pathFor func(uuid.UUID) string) *Handler {
	return &Handler{
		db:      database,
		queue:   q,
		storage: stor,
		pathFor: pathFor,
	}
}

// CreateReel handles POST /v1/reels
func (h *Handler) CreateReel(w http.ResponseWriter, r *http.Request) {
	var req models.CreateReelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Script = strings.TrimSpace(req.Script)
	if req.Script == "" {
		respondError(w, http.StatusBadRequest, "Script is required")
		return
	}
	if utf8.RuneCountInString(req.Script) > maxScriptChars {
		respondError(w, http.StatusBadRequest, "Script is too long (max 5000 characters)")
		return
	}
	if !req.Tone.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid tone. Allowed: energetic, calm, dramatic, educational, inspirational, humorous")
		return
	}
	if req.VoiceID != nil && strings.TrimSpace(*req.VoiceID) == "" {
		req.VoiceID = nil
	}

	reel := &models.ReelJob{
		ID:       uuid.New(),
		Status:   models.ReelStatusProcessing,
		Progress: 0,
		Script:   req.Script,
		Tone:     req.Tone,
		VoiceID:  req.VoiceID,
	}

	if err := h.db.CreateReel(r.Context(), reel); err != nil {
		log.Printf("[API] Failed to create reel: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create reel")
		return
	}

	if err := h.queue.EnqueueRenderReel(r.Context(), reel.ID); err != nil {
		log.Printf("[API] Failed to enqueue reel %s: %v", reel.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue reel")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateReelResponse{
		ReelID: reel.ID,
		Status: reel.Status,
	})
}

// ListReels handles GET /v1/reels
// Query params:
//   - status: filter by reel status
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListReels(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" && !models.ReelStatus(statusFilter).Valid() {
		respondError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountReels(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count reels")
		return
	}

	reels, err := h.db.ListReels(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list reels")
		return
	}

	respondJSON(w, http.StatusOK, models.ListReelsResponse{
		Reels:  reels,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetReel handles GET /v1/reels/{id}
func (h *Handler) GetReel(w http.ResponseWriter, r *http.Request) {
	reel, ok := h.loadReel(w, r)
	if !ok {
		return
	}

	response := models.ReelResponse{ReelJob: *reel}
	if reel.Status == models.ReelStatusCompleted {
		link := "/v1/reels/" + reel.ID.String() + "/download"
		response.DownloadURL = &link
	}
	respondJSON(w, http.StatusOK, response)
}

// CancelReel handles POST /v1/reels/{id}/cancel
func (h *Handler) CancelReel(w http.ResponseWriter, r *http.Request) {
	reelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid reel ID")
		return
	}

	status, err := h.db.RequestCancel(r.Context(), reelID)
	if errors.Is(err, db.ErrReelNotFound) {
		respondError(w, http.StatusNotFound, "Reel not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to cancel reel")
		return
	}
	if status.IsTerminal() {
		respondError(w, http.StatusConflict, "Reel already "+string(status))
		return
	}

	// the persisted flag is authoritative; the redis key is the fast path
	if err := h.queue.RequestCancel(r.Context(), reelID); err != nil {
		log.Printf("[API] Failed to set cancel key for %s: %v", reelID, err)
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"reel_id": reelID.String(),
		"status":  "cancelling",
	})
}

// GetReelDownload handles GET /v1/reels/{id}/download
func (h *Handler) GetReelDownload(w http.ResponseWriter, r *http.Request) {
	reel, ok := h.loadReel(w, r)
	if !ok {
		return
	}
	if reel.Status != models.ReelStatusCompleted {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	if reel.OutputURL != nil {
		signedURL, err := h.storage.GetSignedURL(r.Context(), h.pathFor(reel.ID), signedURLExpirySecs)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
			return
		}
		http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
		return
	}

	// upload failed or is still pending; serve the local copy if this
	// process can see it
	if reel.OutputPath != nil {
		if _, err := os.Stat(*reel.OutputPath); err == nil {
			w.Header().Set("Content-Type", "video/mp4")
			http.ServeFile(w, r, *reel.OutputPath)
			return
		}
	}
	respondError(w, http.StatusNotFound, "Video not available")
}

func (h *Handler) loadReel(w http.ResponseWriter, r *http.Request) (*models.ReelJob, bool) {
	reelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid reel ID")
		return nil, false
	}

	reel, err := h.db.GetReel(r.Context(), reelID)
	if errors.Is(err, db.ErrReelNotFound) {
		respondError(w, http.StatusNotFound, "Reel not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get reel")
		return nil, false
	}
	return reel, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
