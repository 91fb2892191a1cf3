// Package directory implements the sheet-backed identity directory: the
// email → (userID, display name) mapping sharded across buckets, the
// sequential ID assignment backed by the Total append log, and the
// per-base nickname counters.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/logging"
	"github.com/penter405/cubetimer-backend/internal/server/bucket"
	"github.com/penter405/cubetimer-backend/internal/server/models"
	"github.com/penter405/cubetimer-backend/internal/server/tablestore"
)

const (
	UserMapSheet = "UserMap"
	CountsSheet  = "Counts"
	TotalSheet   = "Total"

	// UserMap records are (email, id, nickname); Counts records are
	// (base, count); Total is an append log of (email, legacy name)
	// whose row position is the user ID.
	UserMapFields = 3
	CountsFields  = 2
)

var totalSpan = tablestore.ColumnSpan{Sheet: TotalSheet, Start: 0, End: 1}

// Service performs all identity reads and writes. Registration and
// counter increments are read-modify-write sequences against shared
// rows, so they are serialized through per-key mutexes; two concurrent
// requests for the same email or the same nickname base never
// interleave.
type Service struct {
	store  tablestore.Store
	logger logging.Logger

	emailLocks *xsync.MapOf[string, *sync.Mutex]
	baseLocks  *xsync.MapOf[string, *sync.Mutex]
}

func NewService(store tablestore.Store, logger logging.Logger) *Service {
	return &Service{
		store:      store,
		logger:     logger.With("component", "directory"),
		emailLocks: xsync.NewMapOf[string, *sync.Mutex](),
		baseLocks:  xsync.NewMapOf[string, *sync.Mutex](),
	}
}

func (s *Service) lock(m *xsync.MapOf[string, *sync.Mutex], key string) func() {
	mu, _ := m.LoadOrCompute(key, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

// addr is a bucket address computed against a sheet's capacity at one
// point in time. Writers re-derive the capacity before writing and
// refuse to proceed if it moved (ErrCapacityDrift).
type addr struct {
	span        tablestore.ColumnSpan
	bucketCount int
}

func (s *Service) resolve(ctx context.Context, sheet string, fields int, key string) (addr, error) {
	cols, err := s.store.ColumnCount(ctx, sheet)
	if err != nil {
		return addr{}, fmt.Errorf("capacity of %s: %w", sheet, err)
	}

	count := bucket.Count(cols, fields)
	idx, err := bucket.Index(key, count)
	if err != nil {
		return addr{}, fmt.Errorf("bucket of %q in %s (capacity %d): %w", key, sheet, cols, err)
	}

	return addr{span: bucket.Span(sheet, idx, fields), bucketCount: count}, nil
}

func (s *Service) verifyCapacity(ctx context.Context, sheet string, fields int, a addr) error {
	cols, err := s.store.ColumnCount(ctx, sheet)
	if err != nil {
		return fmt.Errorf("recheck capacity of %s: %w", sheet, err)
	}
	if bucket.Count(cols, fields) != a.bucketCount {
		return fmt.Errorf("%s bucket count changed from %d to %d: %w",
			sheet, a.bucketCount, bucket.Count(cols, fields), common.ErrCapacityDrift)
	}
	return nil
}

// Lookup reads only the bucket owned by email and returns the identity
// stored there, or ErrNotFound.
func (s *Service) Lookup(ctx context.Context, email string) (*models.IdentityRecord, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, common.ErrInvalidInput
	}

	rec, _, _, err := s.scanBucket(ctx, email)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

// scanBucket returns the record for email (nil if absent), the 1-based
// row it occupies, and the bucket address. Rows with a matching email
// but an unparseable ID are corrupt: they are logged and skipped, never
// fatal to the scan.
func (s *Service) scanBucket(ctx context.Context, email string) (*models.IdentityRecord, int, addr, error) {
	a, err := s.resolve(ctx, UserMapSheet, UserMapFields, email)
	if err != nil {
		return nil, 0, addr{}, err
	}

	rows, err := s.store.ReadColumns(ctx, a.span)
	if err != nil {
		return nil, 0, a, fmt.Errorf("read bucket %s: %w", a.span.Sheet, err)
	}

	for i, row := range rows {
		if row[0] != email {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			s.logger.Warn(ctx, "skipping corrupt identity row",
				"sheet", UserMapSheet, "row", i+1, "email", email, "id", row[1])
			continue
		}
		return &models.IdentityRecord{Email: email, UserID: id, DisplayName: row[2]}, i + 1, a, nil
	}
	return nil, len(rows) + 1, a, nil
}

// Register returns the user ID for email, allocating the next sequential
// ID on first sight. The ID is the row position of the email's entry in
// the Total append log. Retried and concurrent registrations for the
// same email converge on one ID: the operation is serialized per email
// and always re-reads the bucket before trusting its own write.
func (s *Service) Register(ctx context.Context, email string) (int, error) {
	email = normalizeEmail(email)
	if email == "" {
		return 0, common.ErrInvalidInput
	}

	unlock := s.lock(s.emailLocks, email)
	defer unlock()

	rec, nextRow, a, err := s.scanBucket(ctx, email)
	if err != nil {
		return 0, err
	}
	if rec != nil {
		return rec.UserID, nil
	}

	userID, err := s.store.Append(ctx, totalSpan, []string{email})
	if err != nil {
		return 0, fmt.Errorf("append to %s log: %w", TotalSheet, err)
	}

	if err := s.verifyCapacity(ctx, UserMapSheet, UserMapFields, a); err != nil {
		return 0, err
	}

	err = s.store.BatchWrite(ctx, []tablestore.RowUpdate{
		{Span: a.span, Row: nextRow, Values: []string{email, strconv.Itoa(userID), ""}},
	})
	if err != nil {
		return 0, fmt.Errorf("write identity: %w", err)
	}

	// A concurrent writer in another process may have raced us into the
	// same bucket. Re-read and return whatever won; our orphan log row
	// is harmless because positions are never reused.
	rec, _, _, err = s.scanBucket(ctx, email)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, fmt.Errorf("identity vanished after write: %w", common.ErrCorruptRecord)
	}
	if rec.UserID != userID {
		s.logger.Warn(ctx, "registration raced, keeping first writer",
			"email", email, "lost_id", userID, "kept_id", rec.UserID)
	}
	return rec.UserID, nil
}

// SetNickname allocates the next unique display name for base and writes
// it into the identity's bucket slot, registering the email first if
// needed. Returns the user ID and the freshly minted unique name.
func (s *Service) SetNickname(ctx context.Context, email, base string) (int, string, error) {
	email = normalizeEmail(email)
	base = strings.TrimSpace(base)
	if email == "" || base == "" {
		return 0, "", common.ErrInvalidInput
	}

	userID, err := s.Register(ctx, email)
	if err != nil {
		return 0, "", err
	}

	uniqueName, err := s.NextUniqueName(ctx, base)
	if err != nil {
		return 0, "", err
	}

	unlock := s.lock(s.emailLocks, email)
	defer unlock()

	_, row, a, err := s.scanBucket(ctx, email)
	if err != nil {
		return 0, "", err
	}

	if err := s.verifyCapacity(ctx, UserMapSheet, UserMapFields, a); err != nil {
		return 0, "", err
	}

	err = s.store.BatchWrite(ctx, []tablestore.RowUpdate{
		{Span: a.span, Row: row, Values: []string{email, strconv.Itoa(userID), uniqueName}},
	})
	if err != nil {
		return 0, "", fmt.Errorf("write nickname: %w", err)
	}

	return userID, uniqueName, nil
}

// NextUniqueName increments the counter owned by base and returns
// "base#n". Serialized per base: sequential callers observe strictly
// increasing suffixes with no repeats.
func (s *Service) NextUniqueName(ctx context.Context, base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", common.ErrInvalidInput
	}

	unlock := s.lock(s.baseLocks, base)
	defer unlock()

	a, err := s.resolve(ctx, CountsSheet, CountsFields, base)
	if err != nil {
		return "", err
	}

	rows, err := s.store.ReadColumns(ctx, a.span)
	if err != nil {
		return "", fmt.Errorf("read counter bucket: %w", err)
	}

	row := len(rows) + 1
	count := 0
	for i, r := range rows {
		if r[0] != base {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(r[1]))
		if err != nil {
			s.logger.Warn(ctx, "resetting corrupt counter row",
				"sheet", CountsSheet, "row", i+1, "base", base, "count", r[1])
		}
		count = n
		row = i + 1
		break
	}

	newCount := count + 1

	if err := s.verifyCapacity(ctx, CountsSheet, CountsFields, a); err != nil {
		return "", err
	}

	err = s.store.BatchWrite(ctx, []tablestore.RowUpdate{
		{Span: a.span, Row: row, Values: []string{base, strconv.Itoa(newCount)}},
	})
	if err != nil {
		return "", fmt.Errorf("write counter: %w", err)
	}

	return fmt.Sprintf("%s#%d", base, newCount), nil
}

// DisplayNames resolves user IDs to display names via the Total log and
// the identity buckets. IDs without a record or without a nickname map
// to the empty string.
func (s *Service) DisplayNames(ctx context.Context, ids []int) (map[int]string, error) {
	totalRows, err := s.store.ReadColumns(ctx, totalSpan)
	if err != nil {
		return nil, fmt.Errorf("read %s log: %w", TotalSheet, err)
	}

	out := make(map[int]string, len(ids))
	for _, id := range ids {
		out[id] = ""
		if id < 1 || id > len(totalRows) {
			continue
		}
		email := totalRows[id-1][0]
		if email == "" {
			continue
		}
		rec, _, _, err := s.scanBucket(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrStoreUnavailable) {
				return nil, err
			}
			continue
		}
		if rec != nil {
			out[id] = rec.DisplayName
		}
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
