package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/logging"
	"github.com/penter405/cubetimer-backend/internal/server/models"
)

type fakeDirectory struct {
	register     func(ctx context.Context, email string) (int, error)
	setNickname  func(ctx context.Context, email, base string) (int, string, error)
	lookup       func(ctx context.Context, email string) (*models.IdentityRecord, error)
	displayNames func(ctx context.Context, ids []int) (map[int]string, error)
}

func (f *fakeDirectory) Register(ctx context.Context, email string) (int, error) {
	return f.register(ctx, email)
}

func (f *fakeDirectory) SetNickname(ctx context.Context, email, base string) (int, string, error) {
	return f.setNickname(ctx, email, base)
}

func (f *fakeDirectory) Lookup(ctx context.Context, email string) (*models.IdentityRecord, error) {
	return f.lookup(ctx, email)
}

func (f *fakeDirectory) DisplayNames(ctx context.Context, ids []int) (map[int]string, error) {
	return f.displayNames(ctx, ids)
}

type fakeLeaderboard struct {
	submit func(ctx context.Context, entry models.ScoreEntry) (string, error)
	sync   func(ctx context.Context) (*models.SyncReport, error)
	feed   func(ctx context.Context) ([]models.FeedEntry, error)
}

func (f *fakeLeaderboard) Submit(ctx context.Context, entry models.ScoreEntry) (string, error) {
	return f.submit(ctx, entry)
}

func (f *fakeLeaderboard) Sync(ctx context.Context) (*models.SyncReport, error) {
	return f.sync(ctx)
}

func (f *fakeLeaderboard) Feed(ctx context.Context) ([]models.FeedEntry, error) {
	return f.feed(ctx)
}

type fakeMigrator struct {
	run func(ctx context.Context) (*models.MigrationReport, error)
}

func (f *fakeMigrator) Run(ctx context.Context) (*models.MigrationReport, error) {
	return f.run(ctx)
}

// fakeVerifier accepts exactly one token.
type fakeVerifier struct {
	token string
	email string
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token != f.token {
		return "", common.ErrInvalidToken
	}
	return f.email, nil
}

func newTestHandlers(d Directory, l Leaderboard, m Migrator) *Handlers {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewHandlers(d, l, m, &fakeVerifier{token: "good-token", email: "alice@example.com"}, logger)
	h.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 45, 0, time.UTC) }
	return h
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestUpdateNickname(t *testing.T) {
	d := &fakeDirectory{
		setNickname: func(ctx context.Context, email, base string) (int, string, error) {
			assert.Equal(t, "alice@example.com", email)
			assert.Equal(t, "Alice", base)
			return 7, "Alice#3", nil
		},
	}
	h := newTestHandlers(d, nil, nil)

	rec := doJSON(t, h.UpdateNickname, http.MethodPost, "/api/update_nickname",
		`{"token":"good-token","nickname":"Alice"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp updateNicknameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.UserID)
	assert.Equal(t, "Alice#3", resp.UniqueName)
}

func TestUpdateNickname_RegisterOnly(t *testing.T) {
	d := &fakeDirectory{
		register: func(ctx context.Context, email string) (int, error) { return 7, nil },
	}
	h := newTestHandlers(d, nil, nil)

	rec := doJSON(t, h.UpdateNickname, http.MethodPost, "/api/update_nickname",
		`{"token":"good-token"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(7), resp["userId"])
	assert.NotContains(t, resp, "uniqueName")
}

func TestUpdateNickname_BadToken(t *testing.T) {
	h := newTestHandlers(&fakeDirectory{}, nil, nil)

	rec := doJSON(t, h.UpdateNickname, http.MethodPost, "/api/update_nickname",
		`{"token":"wrong","nickname":"Alice"}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, common.ErrInvalidToken.Error(), resp.Error)
}

func TestUpdateNickname_MalformedBody(t *testing.T) {
	h := newTestHandlers(&fakeDirectory{}, nil, nil)

	rec := doJSON(t, h.UpdateNickname, http.MethodPost, "/api/update_nickname", `{"token":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveTime(t *testing.T) {
	d := &fakeDirectory{
		lookup: func(ctx context.Context, email string) (*models.IdentityRecord, error) {
			return &models.IdentityRecord{Email: email, UserID: 7, DisplayName: "Alice#1"}, nil
		},
	}
	var got models.ScoreEntry
	l := &fakeLeaderboard{
		submit: func(ctx context.Context, entry models.ScoreEntry) (string, error) {
			got = entry
			return "queue-id-1", nil
		},
	}
	h := newTestHandlers(d, l, nil)

	header := http.Header{"Authorization": []string{"Bearer good-token"}}
	rec := doJSON(t, h.SaveTime, http.MethodPost, "/api/save_time",
		`{"time":12345,"scramble":"R U R' U'","date":"2026/08/30"}`, header)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp saveTimeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "queue-id-1", resp.ID)

	assert.Equal(t, 7, got.UserID)
	assert.Equal(t, int64(12345), got.TimeMs)
	assert.Equal(t, "2026/08/30", got.Date)
	assert.Equal(t, "12:00:45", got.Timestamp)
}

func TestSaveTime_DefaultsDate(t *testing.T) {
	d := &fakeDirectory{
		lookup: func(ctx context.Context, email string) (*models.IdentityRecord, error) {
			return &models.IdentityRecord{Email: email, UserID: 7}, nil
		},
	}
	var got models.ScoreEntry
	l := &fakeLeaderboard{
		submit: func(ctx context.Context, entry models.ScoreEntry) (string, error) {
			got = entry
			return "id", nil
		},
	}
	h := newTestHandlers(d, l, nil)

	header := http.Header{"Authorization": []string{"Bearer good-token"}}
	rec := doJSON(t, h.SaveTime, http.MethodPost, "/api/save_time",
		`{"time":12345,"scramble":"R U R' U'"}`, header)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026/08/31", got.Date)
}

func TestSaveTime_UnregisteredUser(t *testing.T) {
	d := &fakeDirectory{
		lookup: func(ctx context.Context, email string) (*models.IdentityRecord, error) {
			return nil, common.ErrNotFound
		},
	}
	h := newTestHandlers(d, &fakeLeaderboard{}, nil)

	header := http.Header{"Authorization": []string{"Bearer good-token"}}
	rec := doJSON(t, h.SaveTime, http.MethodPost, "/api/save_time",
		`{"time":12345,"scramble":"R U R' U'"}`, header)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user is not registered", resp.Details)
}

func TestSaveTime_MissingToken(t *testing.T) {
	h := newTestHandlers(&fakeDirectory{}, &fakeLeaderboard{}, nil)

	rec := doJSON(t, h.SaveTime, http.MethodPost, "/api/save_time",
		`{"time":12345,"scramble":"R U R' U'"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncScores(t *testing.T) {
	l := &fakeLeaderboard{
		sync: func(ctx context.Context) (*models.SyncReport, error) {
			return &models.SyncReport{Synced: 3, TotalScores: 10, UniqueUsers: 4, DeletedSlowRows: 1}, nil
		},
	}
	h := newTestHandlers(nil, l, nil)

	rec := doJSON(t, h.SyncScores, http.MethodPost, "/api/sync_scores", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"synced":3,"totalScores":10,"uniqueUsers":4,"deletedSlowRows":1}`, rec.Body.String())
}

func TestSyncScores_Busy(t *testing.T) {
	l := &fakeLeaderboard{
		sync: func(ctx context.Context) (*models.SyncReport, error) {
			return nil, common.ErrSyncInProgress
		},
	}
	h := newTestHandlers(nil, l, nil)

	rec := doJSON(t, h.SyncScores, http.MethodPost, "/api/sync_scores", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMigrate(t *testing.T) {
	m := &fakeMigrator{
		run: func(ctx context.Context) (*models.MigrationReport, error) {
			return &models.MigrationReport{TotalSourceUsers: 5, NewUsers: 2, ExistingUsers: 3, Errors: []string{}}, nil
		},
	}
	h := newTestHandlers(nil, nil, m)

	rec := doJSON(t, h.Migrate, http.MethodPost, "/api/migrate", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalSourceUsers":5,"newUsers":2,"existingUsers":3,"errors":[]}`, rec.Body.String())
}

func TestLeaderboard(t *testing.T) {
	l := &fakeLeaderboard{
		feed: func(ctx context.Context) ([]models.FeedEntry, error) {
			return []models.FeedEntry{
				{Rank: 1, UserID: 2, DisplayName: "Bob#1", TimeMs: 9999, Scramble: "F2", Date: "2026/08/31", Timestamp: "12:00:39"},
			}, nil
		},
	}
	h := newTestHandlers(nil, l, nil)

	rec := doJSON(t, h.Leaderboard, http.MethodGet, "/api/leaderboard", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var feed []models.FeedEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed, 1)
	assert.Equal(t, "Bob#1", feed[0].DisplayName)
}

func TestLeaderboard_StoreDown(t *testing.T) {
	l := &fakeLeaderboard{
		feed: func(ctx context.Context) ([]models.FeedEntry, error) {
			return nil, common.ErrStoreUnavailable
		},
	}
	h := newTestHandlers(nil, l, nil)

	rec := doJSON(t, h.Leaderboard, http.MethodGet, "/api/leaderboard", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetNicknames(t *testing.T) {
	d := &fakeDirectory{
		displayNames: func(ctx context.Context, ids []int) (map[int]string, error) {
			assert.Equal(t, []int{1, 2}, ids)
			return map[int]string{1: "Alice#1", 2: ""}, nil
		},
	}
	h := newTestHandlers(d, nil, nil)

	rec := doJSON(t, h.GetNicknames, http.MethodPost, "/api/get_nicknames", `{"ids":[1,2]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"1":"Alice#1","2":""}`, rec.Body.String())
}

func TestRouter_CORS(t *testing.T) {
	l := &fakeLeaderboard{
		feed: func(ctx context.Context) ([]models.FeedEntry, error) { return nil, nil },
	}
	h := newTestHandlers(nil, l, nil)
	router := NewRouter(h, []string{"https://cube.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://cube.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://cube.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestHandlers(&fakeDirectory{}, &fakeLeaderboard{}, nil)
	router := NewRouter(h, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	// Process metrics are always present even before any counter fires.
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_Preflight(t *testing.T) {
	h := newTestHandlers(&fakeDirectory{}, &fakeLeaderboard{}, nil)
	router := NewRouter(h, []string{"*"})

	req := httptest.NewRequest(http.MethodOptions, "/api/save_time", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
