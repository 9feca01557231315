package store

import (
	"context"

	"github.com/ykvlv/levelbot/internal/domain"
)

// UserRepo stores users and their progression. Errors are classified with
// apperr: NotFound for a missing user, Conflict for a duplicate external id.
type UserRepo interface {
	CreateUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUser(ctx context.Context, externalID int64) (*domain.User, error)
	// UpdateProgress loads the user, lets fn change Level and XP, and writes
	// both back in one transaction. It returns the user before and after fn.
	UpdateProgress(ctx context.Context, externalID int64, fn func(u *domain.User) error) (prev, next *domain.User, err error)
}

// NoteRepo stores notes; (user, title) is unique.
type NoteRepo interface {
	CreateNote(ctx context.Context, n *domain.Note) error
	GetNote(ctx context.Context, userID int64, title string) (*domain.Note, error)
	DeleteNote(ctx context.Context, userID int64, title string) error
	CountNotes(ctx context.Context, userID int64) (int, error)
	// ListNotes returns a 1-based page of notes, newest first.
	ListNotes(ctx context.Context, userID int64, page, pageSize int) ([]domain.Note, error)
}

// KVRepo stores per-user key/value pairs; (user, key) is unique.
type KVRepo interface {
	SetKV(ctx context.Context, kv *domain.KeyValue) error
	GetKV(ctx context.Context, userID int64, key string) (*domain.KeyValue, error)
}

// Repo is the full storage surface used by the bot.
type Repo interface {
	UserRepo
	NoteRepo
	KVRepo
	Close() error
}
