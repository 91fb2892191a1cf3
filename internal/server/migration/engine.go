// Package migration consolidates the sheet-backed identity directory into
// the document store. It merges the Total append log with both identity
// sheet generations, inserts the users missing from the target, and
// rebuilds the counters the document generation allocates from.
package migration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/logging"
	"github.com/penter405/cubetimer-backend/internal/server/bucket"
	"github.com/penter405/cubetimer-backend/internal/server/models"
	"github.com/penter405/cubetimer-backend/internal/server/nickcrypt"
	"github.com/penter405/cubetimer-backend/internal/server/repositories/counters"
	"github.com/penter405/cubetimer-backend/internal/server/repositories/users"
	"github.com/penter405/cubetimer-backend/internal/server/tablestore"
)

const (
	TotalSheet = "Total"

	// Newer identity generation: (email, id, nickname) per bucket slot.
	UserMapSheet  = "UserMap"
	UserMapFields = 3

	// Older identity generation, kept readable during the transition:
	// (email, id), no nickname column.
	UserMapV1Sheet  = "UserMapV1"
	UserMapV1Fields = 2

	migratedFrom = "sheets"
)

var totalSpan = tablestore.ColumnSpan{Sheet: TotalSheet, Start: 0, End: 1}

// suffixRe splits a unique display name into its base and counter.
var suffixRe = regexp.MustCompile(`^(.+)#(\d+)$`)

type Engine struct {
	store    tablestore.Store
	users    users.Repository
	counters counters.Repository
	logger   logging.Logger
}

func NewEngine(store tablestore.Store, u users.Repository, c counters.Repository, logger logging.Logger) *Engine {
	return &Engine{
		store:    store,
		users:    u,
		counters: c,
		logger:   logger.With("component", "migration"),
	}
}

// Run performs one migration pass. The pass is additive-only and
// idempotent: existing target documents are never touched, and a rerun
// after a partial failure picks up only what is still missing. Bucket
// read failures skip that partition and are reported, never fatal.
func (e *Engine) Run(ctx context.Context) (*models.MigrationReport, error) {
	report := &models.MigrationReport{Errors: []string{}}

	log, err := e.store.ReadColumns(ctx, totalSpan)
	if err != nil {
		return nil, fmt.Errorf("read %s log: %w", TotalSheet, err)
	}

	scanned := e.scanGenerations(ctx, report)

	// The log is the authority on user IDs: row position wins whenever an
	// email also carries an id in a generation bucket. Bucket records
	// whose email never reached the log are still identities and migrate
	// with their stored id.
	seen := make(map[string]int, len(log))
	source := make([]*models.User, 0, len(log)+len(scanned))
	for i, row := range log {
		email := strings.ToLower(strings.TrimSpace(row[0]))
		if email == "" {
			continue
		}
		userID := i + 1

		if firstID, ok := seen[email]; ok {
			e.logger.Warn(ctx, "duplicate email in append log, keeping first occurrence",
				"email", email, "kept_id", firstID, "dropped_id", userID)
			continue
		}
		seen[email] = userID

		nickname := ""
		if rec, ok := scanned[email]; ok {
			nickname = rec.nickname
			if rec.userID != userID {
				e.logger.Warn(ctx, "bucket id disagrees with append log position, keeping log",
					"email", email, "sheet", rec.sheet, "bucket_id", rec.userID, "log_id", userID)
			}
		}
		if nickname == "" {
			nickname = strings.TrimSpace(row[1])
		}

		source = append(source, e.sourceUser(email, userID, nickname))
	}

	orphans := make([]genRecord, 0, len(scanned))
	for email, rec := range scanned {
		if _, ok := seen[email]; ok {
			continue
		}
		orphans = append(orphans, rec)
	}
	sort.Slice(orphans, func(a, b int) bool { return orphans[a].userID < orphans[b].userID })

	usedIDs := make(map[int]string, len(seen))
	for email, id := range seen {
		usedIDs[id] = email
	}
	for _, rec := range orphans {
		if other, taken := usedIDs[rec.userID]; taken {
			e.logger.Warn(ctx, "bucket identity reuses a user id, migrating anyway",
				"email", rec.email, "id", rec.userID, "also_held_by", other)
		}
		usedIDs[rec.userID] = rec.email
		seen[rec.email] = rec.userID
		source = append(source, e.sourceUser(rec.email, rec.userID, rec.nickname))
	}

	report.TotalSourceUsers = len(source)

	existing, err := e.users.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read target users: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, u := range existing {
		present[strings.ToLower(u.Email)] = true
	}

	toInsert := make([]*models.User, 0, len(source))
	for _, u := range source {
		if present[u.Email] {
			report.ExistingUsers++
			continue
		}
		toInsert = append(toInsert, u)
	}

	if len(toInsert) > 0 {
		if err := e.users.InsertMany(ctx, toInsert); err != nil {
			return nil, fmt.Errorf("insert users: %w", err)
		}
	}
	report.NewUsers = len(toInsert)

	if err := e.rebuildCounters(ctx, existing, toInsert); err != nil {
		return nil, err
	}

	e.logger.Info(ctx, "migration finished",
		"total", report.TotalSourceUsers,
		"new", report.NewUsers,
		"existing", report.ExistingUsers,
		"errors", len(report.Errors))
	return report, nil
}

func (e *Engine) sourceUser(email string, userID int, nickname string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		Email:             email,
		UserID:            userID,
		Nickname:          nickname,
		EncryptedNickname: nickcrypt.Encode(nickname, userID),
		MigratedFrom:      migratedFrom,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// genRecord is one identity read out of a generation bucket.
type genRecord struct {
	email    string
	userID   int
	nickname string
	sheet    string
	bucket   int
}

// scanGenerations reads every bucket of both identity generations and
// returns email → record. The newer generation is scanned first and wins
// cross-generation duplicates; a collision inside the scan keeps the
// first-seen record and logs an integrity warning. A failed bucket read
// skips that partition and records the failure in the report.
func (e *Engine) scanGenerations(ctx context.Context, report *models.MigrationReport) map[string]genRecord {
	out := make(map[string]genRecord)
	e.scanSheet(ctx, UserMapSheet, UserMapFields, out, report)
	e.scanSheet(ctx, UserMapV1Sheet, UserMapV1Fields, out, report)
	return out
}

func (e *Engine) scanSheet(ctx context.Context, sheet string, fields int, out map[string]genRecord, report *models.MigrationReport) {
	cols, err := e.store.ColumnCount(ctx, sheet)
	if err != nil {
		// Deployments that never ran the older generation simply don't
		// have its sheet.
		if errors.Is(err, common.ErrNotFound) {
			e.logger.Info(ctx, "identity sheet absent, skipping", "sheet", sheet)
			return
		}
		report.Errors = append(report.Errors, fmt.Sprintf("%s: capacity: %v", sheet, err))
		return
	}

	for b := 0; b < bucket.Count(cols, fields); b++ {
		span := bucket.Span(sheet, b, fields)
		rows, err := e.store.ReadColumns(ctx, span)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s bucket %d: %v", sheet, b, err))
			continue
		}
		for i, row := range rows {
			email := strings.ToLower(strings.TrimSpace(row[0]))
			if email == "" {
				continue
			}
			if first, ok := out[email]; ok {
				e.logger.Warn(ctx, "duplicate email across identity buckets, keeping first occurrence",
					"email", email,
					"kept", fmt.Sprintf("%s bucket %d", first.sheet, first.bucket),
					"dropped", fmt.Sprintf("%s bucket %d row %d", sheet, b, i+1))
				continue
			}

			id, err := strconv.Atoi(strings.TrimSpace(row[1]))
			if err != nil {
				e.logger.Warn(ctx, "skipping corrupt identity row",
					"sheet", sheet, "bucket", b, "row", i+1, "email", email, "id", row[1])
				continue
			}

			name := ""
			if fields >= UserMapFields {
				name = strings.TrimSpace(row[2])
			}
			out[email] = genRecord{email: email, userID: id, nickname: name, sheet: sheet, bucket: b}
		}
	}
}

// rebuildCounters writes authoritative counter values derived from the
// full post-migration user set: the next free user ID and, per nickname
// base, the highest suffix already handed out.
func (e *Engine) rebuildCounters(ctx context.Context, existing, inserted []*models.User) error {
	maxID := 0
	maxSuffix := make(map[string]int64)

	track := func(u *models.User) {
		if u.UserID > maxID {
			maxID = u.UserID
		}
		m := suffixRe.FindStringSubmatch(u.Nickname)
		if m == nil {
			return
		}
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return
		}
		if n > maxSuffix[m[1]] {
			maxSuffix[m[1]] = n
		}
	}
	for _, u := range existing {
		track(u)
	}
	for _, u := range inserted {
		track(u)
	}

	if err := e.counters.Set(ctx, counters.UserIDKey, int64(maxID)+1); err != nil {
		return fmt.Errorf("rebuild %s counter: %w", counters.UserIDKey, err)
	}
	for base, n := range maxSuffix {
		if err := e.counters.Set(ctx, counters.NicknameKey(base), n); err != nil {
			return fmt.Errorf("rebuild counter for %q: %w", base, err)
		}
	}
	return nil
}
