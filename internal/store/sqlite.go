package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ykvlv/levelbot/internal/apperr"
	"github.com/ykvlv/levelbot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single connection: every transaction below is serialized, which is what
	// keeps concurrent XP grants and admin overrides from interleaving.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, external_id, username, level, xp, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		xp        string
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.Level, &xp, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, "User not found")
		}
		return nil, err
	}
	n, err := decodeXP(xp)
	if err != nil {
		return nil, err
	}
	u.XP = n
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// CreateUser inserts a new user. Level and XP start at 1 and 0 unless set.
func (r *SQLiteRepo) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u == nil {
		return nil, errors.New("nil user")
	}
	level := u.Level
	if level < 1 {
		level = 1
	}
	created := u.CreatedAt.UTC().Unix()
	if u.CreatedAt.IsZero() {
		created = time.Now().UTC().Unix()
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (external_id, username, level, xp, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		u.ExternalID, u.Username, level, encodeXP(u.XP), created,
	)
	out, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(err, apperr.CodeConflict, "A user with this id already exists")
		}
		return nil, err
	}
	return out, nil
}

// GetUser returns the user with the given Telegram id.
func (r *SQLiteRepo) GetUser(ctx context.Context, externalID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
	return scanUser(row)
}

// UpdateProgress implements UserRepo.
func (r *SQLiteRepo) UpdateProgress(ctx context.Context, externalID int64, fn func(u *domain.User) error) (*domain.User, *domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID))
	if err != nil {
		return nil, nil, err
	}

	next := *prev
	next.XP = new(big.Int).Set(prev.XP)
	if err := fn(&next); err != nil {
		return nil, nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users
		SET level = ?, xp = ?
		WHERE id = ?`,
		next.Level, encodeXP(next.XP), prev.ID,
	); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return prev, &next, nil
}

// --- Notes ---

// CreateNote inserts a note; a duplicate title for the same user is a Conflict.
func (r *SQLiteRepo) CreateNote(ctx context.Context, n *domain.Note) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notes (id, user_id, title, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Content, n.CreatedAt.UTC().Unix(),
	)
	if isUniqueViolation(err) {
		return apperr.Wrap(err, apperr.CodeConflict, "A note with this title already exists")
	}
	return err
}

// GetNote returns the user's note with the given title.
func (r *SQLiteRepo) GetNote(ctx context.Context, userID int64, title string) (*domain.Note, error) {
	var (
		n         domain.Note
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, created_at
		FROM notes
		WHERE user_id = ? AND title = ?`,
		userID, title,
	).Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(err, apperr.CodeNotFound, "Note not found")
	}
	if err != nil {
		return nil, err
	}
	n.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &n, nil
}

// DeleteNote removes the user's note with the given title.
func (r *SQLiteRepo) DeleteNote(ctx context.Context, userID int64, title string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE user_id = ? AND title = ?`, userID, title)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("Note not found")
	}
	return nil
}

// CountNotes returns how many notes the user owns.
func (r *SQLiteRepo) CountNotes(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// ListNotes implements NoteRepo.
func (r *SQLiteRepo) ListNotes(ctx context.Context, userID int64, page, pageSize int) ([]domain.Note, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, created_at
		FROM notes
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Note
	for rows.Next() {
		var (
			n         domain.Note
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(createdAt, 0).UTC()
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// --- Key/value ---

// SetKV inserts or replaces the value stored under (user, key).
func (r *SQLiteRepo) SetKV(ctx context.Context, kv *domain.KeyValue) error {
	if kv.ID == "" {
		kv.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO key_values (id, user_id, key, value, is_encrypted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value        = excluded.value,
			is_encrypted = excluded.is_encrypted`,
		kv.ID, kv.UserID, kv.Key, kv.Value, boolToInt(kv.Encrypted),
	)
	return err
}

// GetKV returns the pair stored under (user, key).
func (r *SQLiteRepo) GetKV(ctx context.Context, userID int64, key string) (*domain.KeyValue, error) {
	var (
		kv  domain.KeyValue
		enc int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, key, value, is_encrypted
		FROM key_values
		WHERE user_id = ? AND key = ?`,
		userID, key,
	).Scan(&kv.ID, &kv.UserID, &kv.Key, &kv.Value, &enc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(err, apperr.CodeNotFound, "Key not found")
	}
	if err != nil {
		return nil, err
	}
	kv.Encrypted = enc != 0
	return &kv, nil
}
