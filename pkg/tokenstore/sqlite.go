package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/emberworks/fireside/pkg/idx"
	"github.com/emberworks/fireside/pkg/tokenstore/migrations"
)

// SQLiteStore keeps records in a SQLite database. Suitable when
// multiple tools share one session database on a host.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at dsn and applies any pending
// migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// applyMigrations applies any pending database migrations using the
// embedded migration files which are compiled into the binary.
func (s *SQLiteStore) applyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	migrationsFilesystem, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", migrationsFilesystem, "", driver)
	if err != nil {
		return err
	}

	err = instance.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) (Record, error) {
	var existingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM records WHERE name = ?`, rec.Name,
	).Scan(&existingID)
	switch {
	case err == nil:
		rec.ID = idx.ID(existingID)
	case errors.Is(err, sql.ErrNoRows):
		if rec.ID.IsZero() {
			rec.ID = idx.New()
		}
	default:
		return Record{}, err
	}

	rec.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, name, user_id, refresh_token, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			user_id = excluded.user_id,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		rec.ID.String(), rec.Name, rec.UserID, rec.RefreshToken, rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, user_id, refresh_token, updated_at
		FROM records WHERE name = ?`, name)
	return scanRecord(row)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, user_id, refresh_token, updated_at
		FROM records ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec Record
		id  string
	)
	err := row.Scan(&id, &rec.Name, &rec.UserID, &rec.RefreshToken, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.ID = idx.ID(id)
	return rec, nil
}
