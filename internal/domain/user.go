package domain

import (
	"math/big"
	"time"
)

// User is a registered chat member and their progression.
type User struct {
	ID         int64    // internal row id, 0 until persisted
	ExternalID int64    // Telegram user id
	Username   string   //
	Level      int64    // always LevelFromXP(XP, base) after a committed write
	XP         *big.Int // never nil once loaded
	CreatedAt  time.Time
}

// Note is a titled text owned by a user; (UserID, Title) is unique.
type Note struct {
	ID        string
	UserID    int64
	Title     string
	Content   string
	CreatedAt time.Time
}

// KeyValue is a per-user setting; Value is ciphertext when Encrypted.
type KeyValue struct {
	ID        string
	UserID    int64
	Key       string
	Value     string
	Encrypted bool
}
