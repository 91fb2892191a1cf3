// Package httpapi is the HTTP boundary: request decoding, token
// verification, CORS and the status mapping for the domain sentinels.
// All real work happens in the directory, leaderboard and migration
// services.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/logging"
	"github.com/penter405/cubetimer-backend/internal/server/auth"
	"github.com/penter405/cubetimer-backend/internal/server/models"
)

// Directory is the slice of the directory service the handlers need.
type Directory interface {
	Register(ctx context.Context, email string) (int, error)
	SetNickname(ctx context.Context, email, base string) (int, string, error)
	Lookup(ctx context.Context, email string) (*models.IdentityRecord, error)
	DisplayNames(ctx context.Context, ids []int) (map[int]string, error)
}

// Leaderboard is the slice of the leaderboard service the handlers need.
type Leaderboard interface {
	Submit(ctx context.Context, entry models.ScoreEntry) (string, error)
	Sync(ctx context.Context) (*models.SyncReport, error)
	Feed(ctx context.Context) ([]models.FeedEntry, error)
}

// Migrator triggers one migration pass.
type Migrator interface {
	Run(ctx context.Context) (*models.MigrationReport, error)
}

type Handlers struct {
	directory   Directory
	leaderboard Leaderboard
	migrator    Migrator
	verifier    auth.Verifier
	logger      logging.Logger

	// now is swapped out by tests.
	now func() time.Time
}

func NewHandlers(d Directory, l Leaderboard, m Migrator, v auth.Verifier, logger logging.Logger) *Handlers {
	return &Handlers{
		directory:   d,
		leaderboard: l,
		migrator:    m,
		verifier:    v,
		logger:      logger.With("component", "httpapi"),
		now:         time.Now,
	}
}

type updateNicknameRequest struct {
	Token    string `json:"token"`
	Nickname string `json:"nickname"`
}

type updateNicknameResponse struct {
	UserID     int    `json:"userId"`
	UniqueName string `json:"uniqueName,omitempty"`
}

// UpdateNickname registers the token's email and, when a base nickname
// is supplied, mints the next unique display name for it.
func (h *Handlers) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateNicknameRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid request body")
		return
	}

	email, err := h.verifier.Verify(ctx, req.Token)
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}

	if strings.TrimSpace(req.Nickname) == "" {
		userID, err := h.directory.Register(ctx, email)
		if err != nil {
			h.writeError(ctx, w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, updateNicknameResponse{UserID: userID})
		return
	}

	userID, uniqueName, err := h.directory.SetNickname(ctx, email, req.Nickname)
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, updateNicknameResponse{UserID: userID, UniqueName: uniqueName})
}

type saveTimeRequest struct {
	Time     int64  `json:"time"`
	Scramble string `json:"scramble"`
	Date     string `json:"date"`
}

type saveTimeResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// SaveTime stages one solve for the token's user. Submitting before
// registering a nickname is a client error, not a silent registration.
func (h *Handlers) SaveTime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email, err := h.verifier.Verify(ctx, bearerToken(r))
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}

	rec, err := h.directory.Lookup(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			h.writeError(ctx, w, common.ErrInvalidInput, "user is not registered")
			return
		}
		h.writeError(ctx, w, err, "")
		return
	}

	var req saveTimeRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid request body")
		return
	}

	now := h.now().UTC()
	date := req.Date
	if date == "" {
		date = now.Format("2006/01/02")
	}

	id, err := h.leaderboard.Submit(ctx, models.ScoreEntry{
		UserID:    rec.UserID,
		TimeMs:    req.Time,
		Scramble:  req.Scramble,
		Date:      date,
		Timestamp: now.Format("15:04:05"),
	})
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, saveTimeResponse{Success: true, ID: id})
}

// SyncScores triggers one leaderboard sync cycle.
func (h *Handlers) SyncScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.leaderboard.Sync(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Migrate triggers one migration pass.
func (h *Handlers) Migrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.migrator.Run(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Leaderboard returns the ranked all-time feed.
func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	feed, err := h.leaderboard.Feed(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

type getNicknamesRequest struct {
	IDs []int `json:"ids"`
}

// GetNicknames resolves user IDs to display names in one batch.
func (h *Handlers) GetNicknames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req getNicknamesRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid request body")
		return
	}

	names, err := h.directory.DisplayNames(ctx, req.IDs)
	if err != nil {
		h.writeError(ctx, w, err, "")
		return
	}

	out := make(map[string]string, len(names))
	for id, name := range names {
		out[fmt.Sprintf("%d", id)] = name
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", common.ErrInvalidInput)
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
