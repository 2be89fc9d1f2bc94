package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pictor/internal/config"
)

// Store manages bag persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the registry database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.RegistryPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Add registers a new bag awaiting preparation. The opaque identifier is
// assigned here; the origin identifier is extracted later during preparation.
func (s *Store) Add(ctx context.Context, sourcePath string) (*Bag, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, errors.New("source path required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	identifier := uuid.NewString()

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO bags (identifier, status, source_path, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		identifier,
		StatusCreated,
		sourcePath,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert bag: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a bag by registry id. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Bag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bagColumns+` FROM bags WHERE id = ?`, id)
	bag, err := scanBag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bag: %w", err)
	}
	return bag, nil
}

// GetByIdentifier fetches a bag by its opaque identifier. Returns nil when absent.
func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (*Bag, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+bagColumns+` FROM bags WHERE identifier = ?`,
		strings.TrimSpace(identifier),
	)
	bag, err := scanBag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bag by identifier: %w", err)
	}
	return bag, nil
}

// GetByOriginIdentifier returns the most recent bag recorded for a public
// origin identifier. Returns nil when absent.
func (s *Store) GetByOriginIdentifier(ctx context.Context, origin string) (*Bag, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+bagColumns+` FROM bags WHERE origin_identifier = ? ORDER BY id DESC LIMIT 1`,
		strings.TrimSpace(origin),
	)
	bag, err := scanBag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bag by origin: %w", err)
	}
	return bag, nil
}

// List returns bags filtered by status set (or all bags when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Bag, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + bagColumns + ` FROM bags`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list bags: %w", err)
	}
	defer rows.Close()

	return collectBags(rows)
}

// ListWithManifest returns bags whose manifest has been built at least once,
// regardless of downstream state. Used by the bulk manifest recreation path.
func (s *Store) ListWithManifest(ctx context.Context) ([]*Bag, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+bagColumns+` FROM bags WHERE manifest_built_at IS NOT NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bags with manifest: %w", err)
	}
	defer rows.Close()

	return collectBags(rows)
}

// Update persists changes to an existing bag unconditionally. Stage code
// should prefer Transition, which enforces compare-and-set semantics.
func (s *Store) Update(ctx context.Context, bag *Bag) error {
	if bag == nil {
		return errors.New("bag is nil")
	}
	bag.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, updateQuery, updateArgs(bag)...)
	if err != nil {
		return fmt.Errorf("update bag: %w", err)
	}
	return nil
}

// Transition persists the bag only if its stored status still equals from.
// This is the single-writer discipline for stage completion: a concurrent
// writer that advanced the bag first causes ErrConflict, never a lost update.
func (s *Store) Transition(ctx context.Context, bag *Bag, from Status) error {
	if bag == nil {
		return errors.New("bag is nil")
	}
	bag.UpdatedAt = time.Now().UTC()
	args := append(updateArgs(bag), from)
	res, err := s.db.ExecContext(ctx, updateQuery+` AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("transition bag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bag %d expected status %s: %w", bag.ID, from, ErrConflict)
	}
	return nil
}

const updateQuery = `UPDATE bags
         SET origin_identifier = ?, title = ?, date = ?, status = ?,
             failed_stage = ?, error_message = ?, retry_count = ?,
             source_path = ?, working_path = ?, derivative_path = ?,
             objects_json = ?, manifest_built_at = ?, uploaded_at = ?, updated_at = ?
         WHERE id = ?`

func updateArgs(bag *Bag) []any {
	return []any{
		nullableString(bag.OriginIdentifier),
		nullableString(bag.Title),
		nullableString(bag.Date),
		bag.Status,
		nullableString(bag.FailedStage),
		nullableString(bag.ErrorMessage),
		bag.RetryCount,
		nullableString(bag.SourcePath),
		nullableString(bag.WorkingPath),
		nullableString(bag.DerivativePath),
		nullableString(bag.ObjectsJSON),
		nullableTime(bag.ManifestBuiltAt),
		nullableTime(bag.UploadedAt),
		bag.UpdatedAt.Format(time.RFC3339Nano),
		bag.ID,
	}
}

func collectBags(rows *sql.Rows) ([]*Bag, error) {
	var bags []*Bag
	for rows.Next() {
		bag, err := scanBag(rows)
		if err != nil {
			return nil, err
		}
		bags = append(bags, bag)
	}
	return bags, rows.Err()
}
