package models

import "time"

// IdentityRecord is one row of the sheet-backed identity directory:
// an email mapped to an immutable sequential user ID and a mutable,
// globally unique display name ("base#n", empty until first requested).
type IdentityRecord struct {
	Email       string
	UserID      int
	DisplayName string
}

// User is the document-store generation of an identity, the migration
// target. EncryptedNickname keeps the legacy reversible encoding so
// already-migrated documents stay readable.
type User struct {
	Email             string    `bson:"email"`
	UserID            int       `bson:"userID"`
	Nickname          string    `bson:"nickname"`
	EncryptedNickname string    `bson:"encryptedNickname"`
	MigratedFrom      string    `bson:"migratedFrom,omitempty"`
	CreatedAt         time.Time `bson:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt"`
}
