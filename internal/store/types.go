package store

import "time"

// MaxPhrasePhones is the longest phrase the userphrase_v1 table can hold.
const MaxPhrasePhones = 11

// UserPhrase is one learned phrase.
type UserPhrase struct {
	// Phrase is the text; one character per phone.
	Phrase string
	// Phones are the encoded syllables, one per character.
	Phones []uint16

	// Time is the engine lifetime tick at which the phrase was last used.
	Time     int64
	OrigFreq int
	MaxFreq  int
	UserFreq int
}

// Stats summarizes the store contents.
type Stats struct {
	Phrases     int64
	MaxUserFreq int
	Lifetime    int64
}

// MigrationStatus represents the current migration state.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Applied        []AppliedMigration
	Pending        []Migration
}

// AppliedMigration represents a migration that has been applied.
type AppliedMigration struct {
	Version     int
	Description string
	AppliedAt   time.Time
}
