// Package leaderboard implements the size-bounded leaderboard: the fast
// synchronous submit half that stages scores in the pending queue, and
// the externally triggered sync half that commits them to the retention
// windows, enforces capacity and rebuilds the materialized views.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/VictoriaMetrics/metrics"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/logging"
	"github.com/penter405/cubetimer-backend/internal/server/models"
	"github.com/penter405/cubetimer-backend/internal/server/repositories/pending"
	"github.com/penter405/cubetimer-backend/internal/server/repositories/users"
	"github.com/penter405/cubetimer-backend/internal/server/tablestore"
)

// MaxRows caps every retention window. Eviction keeps the fastest
// MaxRows entries ever seen, not the most recent.
const MaxRows = 1000

// WindowSheets are the five retention windows a committed score fans out
// to. Period resets (clearing year/month/week/today at their boundaries)
// belong to an external job; this package treats each window as opaque
// ordered storage. The first entry is the all-time window the views and
// the feed are built from.
var WindowSheets = []string{
	"ScoreBoard_All",
	"ScoreBoard_Year",
	"ScoreBoard_Month",
	"ScoreBoard_Week",
	"ScoreBoard_Today",
}

const (
	ViewSheet       = "FrontEndScoreBoard"
	ViewUniqueSheet = "FrontEndScoreBoardUnique"
)

// Window rows are (userID, time, scramble, date, timestamp, status).
const windowFields = 6

var (
	viewSpan       = tablestore.ColumnSpan{Sheet: ViewSheet, Start: 0, End: 4}
	viewUniqueSpan = tablestore.ColumnSpan{Sheet: ViewUniqueSheet, Start: 0, End: 3}
)

var (
	submitTotal  = metrics.NewCounter("leaderboard_submissions_total")
	syncTotal    = metrics.NewCounter("leaderboard_sync_cycles_total")
	syncBusy     = metrics.NewCounter("leaderboard_sync_rejected_busy_total")
	scoresSynced = metrics.NewCounter("leaderboard_scores_synced_total")
	rowsEvicted  = metrics.NewCounter("leaderboard_rows_evicted_total")
)

// Service owns the leaderboard write path. Sync is single-flight within
// the process; an overlapping trigger gets ErrSyncInProgress instead of
// queueing up behind the running cycle.
type Service struct {
	store  tablestore.Store
	queue  pending.Repository
	users  users.Repository
	logger logging.Logger

	syncMu sync.Mutex
}

func NewService(store tablestore.Store, queue pending.Repository, u users.Repository, logger logging.Logger) *Service {
	return &Service{
		store:  store,
		queue:  queue,
		users:  u,
		logger: logger.With("component", "leaderboard"),
	}
}

// Submit validates and stages one solve. It returns the queue id and
// never touches the window sheets; visibility waits for the next sync.
func (s *Service) Submit(ctx context.Context, entry models.ScoreEntry) (string, error) {
	// A zero time is a legal (if suspicious) solve; only negatives are
	// rejected.
	if entry.UserID < 1 || entry.TimeMs < 0 || strings.TrimSpace(entry.Scramble) == "" {
		return "", fmt.Errorf("score entry: %w", common.ErrInvalidInput)
	}
	entry.Status = models.StatusVerified

	id, err := s.queue.Enqueue(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("enqueue score: %w", err)
	}
	submitTotal.Inc()
	return id, nil
}

// Sync drains the pending queue, fans each entry out to every retention
// window with natural-key de-duplication, enforces the row cap, rebuilds
// both materialized views and acknowledges the drained ids last. Any
// failure aborts without acknowledging, so the next trigger retries the
// same set; duplicate re-application is absorbed by the de-duplication.
// Capacity and views are re-validated every cycle even with nothing
// pending.
func (s *Service) Sync(ctx context.Context) (*models.SyncReport, error) {
	if !s.syncMu.TryLock() {
		syncBusy.Inc()
		return nil, common.ErrSyncInProgress
	}
	defer s.syncMu.Unlock()
	syncTotal.Inc()

	staged, err := s.queue.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("drain pending queue: %w", err)
	}

	report := &models.SyncReport{}
	var allWindow []models.ScoreEntry

	for i, sheet := range WindowSheets {
		kept, evicted, err := s.commitWindow(ctx, sheet, staged)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", sheet, err)
		}
		report.DeletedSlowRows += evicted
		if i == 0 {
			allWindow = kept
		}
	}

	if err := s.rebuildViews(ctx, allWindow); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(staged))
	for _, p := range staged {
		ids = append(ids, p.ID)
	}
	if err := s.queue.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("acknowledge %d entries: %w", len(ids), err)
	}

	report.Synced = len(staged)
	report.TotalScores = len(allWindow)
	seen := make(map[int]struct{}, len(allWindow))
	for _, e := range allWindow {
		seen[e.UserID] = struct{}{}
	}
	report.UniqueUsers = len(seen)

	scoresSynced.Add(report.Synced)
	rowsEvicted.Add(report.DeletedSlowRows)
	s.logger.Info(ctx, "sync cycle finished",
		"synced", report.Synced,
		"total_scores", report.TotalScores,
		"unique_users", report.UniqueUsers,
		"evicted", report.DeletedSlowRows)
	return report, nil
}

// commitWindow merges the staged entries into one retention window and
// rewrites it. Returns the surviving entries in storage order and the
// number of evicted rows.
func (s *Service) commitWindow(ctx context.Context, sheet string, staged []*models.PendingScore) ([]models.ScoreEntry, int, error) {
	span := tablestore.ColumnSpan{Sheet: sheet, Start: 0, End: windowFields - 1}

	rows, err := s.store.ReadColumns(ctx, span)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: %w", err)
	}

	entries := make([]models.ScoreEntry, 0, len(rows)+len(staged))
	keys := make(map[string]struct{}, len(rows)+len(staged))
	for i, row := range rows {
		e, err := parseWindowRow(row)
		if err != nil {
			s.logger.Warn(ctx, "skipping corrupt window row", "sheet", sheet, "row", i+1, "err", err)
			continue
		}
		entries = append(entries, e)
		keys[e.NaturalKey()] = struct{}{}
	}

	for _, p := range staged {
		key := p.Entry.NaturalKey()
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		entries = append(entries, p.Entry)
	}

	kept, evicted := enforceCap(entries, MaxRows)

	out := make([][]string, 0, len(kept))
	for _, e := range kept {
		out = append(out, renderWindowRow(e))
	}
	if err := s.store.Overwrite(ctx, span, out); err != nil {
		return nil, 0, fmt.Errorf("rewrite: %w", err)
	}
	return kept, evicted, nil
}

// enforceCap drops the slowest entries beyond max. Equal times break
// toward keeping the earlier-inserted entry; survivors stay in their
// original relative order.
func enforceCap(entries []models.ScoreEntry, max int) ([]models.ScoreEntry, int) {
	if len(entries) <= max {
		return entries, 0
	}

	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ea, eb := entries[idx[a]], entries[idx[b]]
		if ea.TimeMs != eb.TimeMs {
			return ea.TimeMs > eb.TimeMs
		}
		return idx[a] > idx[b]
	})

	evict := make(map[int]struct{}, len(entries)-max)
	for _, i := range idx[:len(entries)-max] {
		evict[i] = struct{}{}
	}

	kept := make([]models.ScoreEntry, 0, max)
	for i, e := range entries {
		if _, gone := evict[i]; gone {
			continue
		}
		kept = append(kept, e)
	}
	return kept, len(entries) - max
}

// rebuildViews rewrites both materialized views from the all-time window
// joined against the user documents. Users without a nickname render as
// "ID:{userID}".
func (s *Service) rebuildViews(ctx context.Context, allWindow []models.ScoreEntry) error {
	names, err := s.displayNames(ctx, allWindow)
	if err != nil {
		return err
	}

	full := make([][]string, 0, len(allWindow))
	for _, e := range allWindow {
		full = append(full, []string{names[e.UserID], e.FormattedTime(), e.Scramble, e.Date, e.Timestamp})
	}
	if err := s.store.Overwrite(ctx, viewSpan, full); err != nil {
		return fmt.Errorf("rewrite %s: %w", ViewSheet, err)
	}

	best := bestPerUser(allWindow)
	unique := make([][]string, 0, len(best))
	for _, e := range best {
		unique = append(unique, []string{names[e.UserID], e.FormattedTime(), e.Date, e.Timestamp})
	}
	if err := s.store.Overwrite(ctx, viewUniqueSpan, unique); err != nil {
		return fmt.Errorf("rewrite %s: %w", ViewUniqueSheet, err)
	}
	return nil
}

func (s *Service) displayNames(ctx context.Context, entries []models.ScoreEntry) (map[int]string, error) {
	idSet := make(map[int]struct{}, len(entries))
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		if _, ok := idSet[e.UserID]; ok {
			continue
		}
		idSet[e.UserID] = struct{}{}
		ids = append(ids, e.UserID)
	}

	docs, err := s.users.FindByUserIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve display names: %w", err)
	}

	names := make(map[int]string, len(ids))
	for _, id := range ids {
		names[id] = "ID:" + strconv.Itoa(id)
	}
	for _, u := range docs {
		if u.Nickname != "" {
			names[u.UserID] = u.Nickname
		}
	}
	return names, nil
}

// bestPerUser keeps each user's fastest solve, sorted fastest first.
// Equal times keep the earlier entry.
func bestPerUser(entries []models.ScoreEntry) []models.ScoreEntry {
	best := make(map[int]models.ScoreEntry, len(entries))
	order := make([]int, 0, len(entries))
	for _, e := range entries {
		cur, ok := best[e.UserID]
		if !ok {
			best[e.UserID] = e
			order = append(order, e.UserID)
			continue
		}
		if e.TimeMs < cur.TimeMs {
			best[e.UserID] = e
		}
	}

	out := make([]models.ScoreEntry, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].TimeMs < out[b].TimeMs
	})
	return out
}

// Feed returns the all-time window ranked fastest first, with display
// names resolved the same way the views render them.
func (s *Service) Feed(ctx context.Context) ([]models.FeedEntry, error) {
	span := tablestore.ColumnSpan{Sheet: WindowSheets[0], Start: 0, End: windowFields - 1}
	rows, err := s.store.ReadColumns(ctx, span)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", WindowSheets[0], err)
	}

	entries := make([]models.ScoreEntry, 0, len(rows))
	for i, row := range rows {
		e, err := parseWindowRow(row)
		if err != nil {
			s.logger.Warn(ctx, "skipping corrupt window row", "sheet", WindowSheets[0], "row", i+1, "err", err)
			continue
		}
		entries = append(entries, e)
	}

	names, err := s.displayNames(ctx, entries)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].TimeMs < entries[b].TimeMs
	})

	feed := make([]models.FeedEntry, 0, len(entries))
	for i, e := range entries {
		feed = append(feed, models.FeedEntry{
			Rank:        i + 1,
			UserID:      e.UserID,
			DisplayName: names[e.UserID],
			TimeMs:      e.TimeMs,
			Scramble:    e.Scramble,
			Date:        e.Date,
			Timestamp:   e.Timestamp,
		})
	}
	return feed, nil
}

func parseWindowRow(row []string) (models.ScoreEntry, error) {
	userID, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return models.ScoreEntry{}, fmt.Errorf("user id %q: %w", row[0], common.ErrCorruptRecord)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return models.ScoreEntry{}, fmt.Errorf("time %q: %w", row[1], common.ErrCorruptRecord)
	}
	return models.ScoreEntry{
		UserID:    userID,
		TimeMs:    int64(seconds*1000 + 0.5),
		Scramble:  row[2],
		Date:      row[3],
		Timestamp: row[4],
		Status:    row[5],
	}, nil
}

func renderWindowRow(e models.ScoreEntry) []string {
	return []string{
		strconv.Itoa(e.UserID),
		e.FormattedTime(),
		e.Scramble,
		e.Date,
		e.Timestamp,
		e.Status,
	}
}
