// Package sqlite keeps actors and their branch permissions in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/grafana/treeforge/auth"
	"github.com/grafana/treeforge/log"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

const defaultActivityTimeout = 5 * time.Second

// User is a stored actor. The secret hash never leaves the package.
type User struct {
	Username          string
	Active            bool
	SuperUser         bool
	CanCreateBranches bool
	// Branches are the branch names or path.Match patterns the user may change.
	Branches     []string
	LastActivity time.Time
	CreatedAt    time.Time
}

// NewUser describes a user to add.
type NewUser struct {
	Username          string
	Secret            string
	SuperUser         bool
	CanCreateBranches bool
	Branches          []string
}

// Store is an auth.Authorizer backed by SQLite.
type Store struct {
	db              *sql.DB
	cost            int
	activityTimeout time.Duration
	now             func() time.Time
	pending         sync.WaitGroup
}

var _ auth.Authorizer = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithBcryptCost sets the cost used to hash new secrets.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		s.cost = cost
	}
}

// WithActivityTimeout bounds the background last-activity update.
func WithActivityTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.activityTimeout = timeout
		}
	}
}

// Open opens the database at dsn and applies pending migrations.
// A plain file path gets its parent directory created.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(time.Minute)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, options...), nil
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, result := range results {
		log.FromContext(ctx).Debug("Applied migration", "source", result.Source.Path, "duration", result.Duration)
	}
	return nil
}

// New wraps an already migrated database.
func New(db *sql.DB, options ...Option) *Store {
	s := &Store{
		db:              db,
		cost:            bcrypt.DefaultCost,
		activityTimeout: defaultActivityTimeout,
		now:             time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Wait blocks until background activity updates are done.
func (s *Store) Wait() {
	s.pending.Wait()
}

// Close waits for background updates and closes the database.
func (s *Store) Close() error {
	s.Wait()
	return s.db.Close()
}

// AddUser stores a user with a hashed secret.
func (s *Store) AddUser(ctx context.Context, user NewUser) error {
	if strings.TrimSpace(user.Username) == "" {
		return errors.New("username is required")
	}
	if user.Secret == "" {
		return errors.New("secret is required")
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(user.Secret), s.cost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, user.Username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, user.Username)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (username, secret_hash, super_user, can_create_branches)
		VALUES (?, ?, ?, ?)
	`, user.Username, string(secretHash), user.SuperUser, user.CanCreateBranches)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	if err := replaceBranches(ctx, tx, user.Username, user.Branches); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user: %w", err)
	}
	return nil
}

// SetActive enables or disables a user.
func (s *Store) SetActive(ctx context.Context, username string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE username = ?`, active, username)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res, username)
}

// SetBranches replaces the branches a user may change.
func (s *Store) SetBranches(ctx context.Context, username string, branches []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	if err := replaceBranches(ctx, tx, username, branches); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit branches: %w", err)
	}
	return nil
}

// RemoveUser deletes a user and their branch permissions.
func (s *Store) RemoveUser(ctx context.Context, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_branches WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete branches: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := requireRow(res, username); err != nil {
		return err
	}
	return tx.Commit()
}

// User loads a user and their branches.
func (s *Store) User(ctx context.Context, username string) (*User, error) {
	u, _, err := s.load(ctx, username)
	return u, err
}

// Users lists every user, ordered by name.
func (s *Store) Users(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	_ = rows.Close()

	users := make([]User, 0, len(names))
	for _, name := range names {
		u, err := s.User(ctx, name)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// ValidateActor implements auth.Authorizer. On success the user's last activity
// is recorded in the background; a failure there is logged and otherwise ignored.
func (s *Store) ValidateActor(ctx context.Context, username, secret, branch string) (auth.Decision, error) {
	logger := log.FromContext(ctx)

	user, secretHash, err := s.load(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		logger.Debug("Unknown actor", "user", username)
		return auth.Deny(auth.ReasonUnknownActor), nil
	}
	if err != nil {
		return auth.Decision{}, err
	}

	if !user.Active {
		return auth.Deny(auth.ReasonInactive), nil
	}

	if err := bcrypt.CompareHashAndPassword(secretHash, []byte(secret)); err != nil {
		logger.Debug("Secret mismatch", "user", username)
		return auth.Deny(auth.ReasonBadSecret), nil
	}

	if branch != "" && !user.SuperUser && !permits(user.Branches, branch) {
		logger.Debug("Branch not permitted", "user", username, "branch", branch)
		return auth.Deny(auth.ReasonBranchNotPermitted), nil
	}

	s.touch(ctx, username)

	return auth.Decision{
		Authorized:        true,
		SuperUser:         user.SuperUser,
		CanCreateBranches: user.SuperUser || user.CanCreateBranches,
	}, nil
}

func (s *Store) touch(ctx context.Context, username string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.activityTimeout)
		defer cancel()

		_, err := s.db.ExecContext(ctx, `UPDATE users SET last_activity_at = ? WHERE username = ?`, s.now().UTC(), username)
		if err != nil {
			log.FromContext(ctx).Warn("Failed to record activity", "user", username, "error", err)
		}
	}()
}

func (s *Store) load(ctx context.Context, username string) (*User, []byte, error) {
	var (
		u          User
		secretHash string
		last       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, secret_hash, active, super_user, can_create_branches, last_activity_at, created_at
		FROM users
		WHERE username = ?
	`, username).Scan(&u.Username, &secretHash, &u.Active, &u.SuperUser, &u.CanCreateBranches, &last, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, nil, fmt.Errorf("select user: %w", err)
	}
	if last.Valid {
		u.LastActivity = last.Time
	}

	rows, err := s.db.QueryContext(ctx, `SELECT pattern FROM user_branches WHERE username = ? ORDER BY pattern`, username)
	if err != nil {
		return nil, nil, fmt.Errorf("query branches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return nil, nil, fmt.Errorf("scan branch: %w", err)
		}
		u.Branches = append(u.Branches, pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate branches: %w", err)
	}

	return &u, []byte(secretHash), nil
}

func replaceBranches(ctx context.Context, tx *sql.Tx, username string, branches []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_branches WHERE username = ?`, username); err != nil {
		return fmt.Errorf("clear branches: %w", err)
	}

	unique := make(map[string]bool, len(branches))
	for _, b := range branches {
		if b = strings.TrimSpace(b); b != "" {
			unique[b] = true
		}
	}
	patterns := make([]string, 0, len(unique))
	for b := range unique {
		patterns = append(patterns, b)
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_branches (username, pattern) VALUES (?, ?)`, username, pattern); err != nil {
			return fmt.Errorf("insert branch %s: %w", pattern, err)
		}
	}
	return nil
}

// permits matches branch against names and path.Match patterns such as feature/*.
func permits(patterns []string, branch string) bool {
	for _, pattern := range patterns {
		if pattern == branch {
			return true
		}
		if ok, err := path.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

func requireRow(res sql.Result, username string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}
