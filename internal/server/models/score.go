package models

import (
	"fmt"
	"time"
)

// StatusVerified is the only status a committed score can carry; entries
// reach the leaderboard exclusively through the verified submit path.
const StatusVerified = "Verified"

// ScoreEntry is one solve result. Immutable once committed to a
// retention window; capacity enforcement removes entries, never edits
// them.
type ScoreEntry struct {
	UserID    int    `bson:"userID" json:"userId"`
	TimeMs    int64  `bson:"time" json:"time"`
	Scramble  string `bson:"scramble" json:"scramble"`
	Date      string `bson:"date" json:"date"`
	Timestamp string `bson:"timestamp" json:"timestamp"`
	Status    string `bson:"status" json:"status"`
}

// NaturalKey identifies a submission independent of storage position.
// The sync job uses it to absorb duplicate commits after a crash between
// commit and acknowledge.
func (e ScoreEntry) NaturalKey() string {
	return fmt.Sprintf("%d|%s|%s", e.UserID, e.Timestamp, e.Scramble)
}

// FormattedTime renders the millisecond time the way window sheets store
// it: seconds with three decimals.
func (e ScoreEntry) FormattedTime() string {
	return fmt.Sprintf("%.3f", float64(e.TimeMs)/1000)
}

// PendingScore stages a submission until a sync cycle confirms its
// commit into the retention windows.
type PendingScore struct {
	ID         string     `bson:"_id"`
	Entry      ScoreEntry `bson:"entry"`
	SyncStatus string     `bson:"syncStatus"`
	CreatedAt  time.Time  `bson:"createdAt"`
}

// SyncStatusPending marks entries waiting for a sync cycle. Committed
// entries are deleted on acknowledge, never kept in a terminal state.
const SyncStatusPending = "pending"

// FeedEntry is one row of the leaderboard read endpoint.
type FeedEntry struct {
	Rank        int    `json:"rank"`
	UserID      int    `json:"userId"`
	DisplayName string `json:"displayName"`
	TimeMs      int64  `json:"time"`
	Scramble    string `json:"scramble"`
	Date        string `json:"date"`
	Timestamp   string `json:"timestamp"`
}
