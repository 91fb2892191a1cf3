package models

// MigrationReport summarizes one migration run. Errors holds
// per-partition read failures; a non-empty Errors with NewUsers > 0
// means a partial (re-runnable) migration.
type MigrationReport struct {
	TotalSourceUsers int      `json:"totalSourceUsers"`
	NewUsers         int      `json:"newUsers"`
	ExistingUsers    int      `json:"existingUsers"`
	Errors           []string `json:"errors"`
}

// SyncReport summarizes one leaderboard sync cycle.
type SyncReport struct {
	Synced          int `json:"synced"`
	TotalScores     int `json:"totalScores"`
	UniqueUsers     int `json:"uniqueUsers"`
	DeletedSlowRows int `json:"deletedSlowRows"`
}
