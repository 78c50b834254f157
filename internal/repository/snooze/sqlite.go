package snooze

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

const schema = `CREATE TABLE IF NOT EXISTS snoozes (
	alarm_id      INTEGER PRIMARY KEY,
	snoozed_until INTEGER NOT NULL
)`

// SQLiteRepository persists snooze records in SQLite.
type SQLiteRepository struct {
	// db is the database handle.
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snooze database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create snooze table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Load returns every record.
func (r *SQLiteRepository) Load(ctx context.Context) (map[int]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT alarm_id, snoozed_until FROM snoozes`)
	if err != nil {
		return nil, fmt.Errorf("query snoozes: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	records := make(map[int]time.Time)

	for rows.Next() {
		var (
			id    int
			until int64
		)

		if err = rows.Scan(&id, &until); err != nil {
			return nil, fmt.Errorf("scan snooze: %w", err)
		}

		records[id] = time.UnixMilli(until)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snoozes: %w", err)
	}

	return records, nil
}

// Save upserts the record for id.
func (r *SQLiteRepository) Save(ctx context.Context, id int, until time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO snoozes (alarm_id, snoozed_until) VALUES (?, ?)
		 ON CONFLICT(alarm_id) DO UPDATE SET snoozed_until = excluded.snoozed_until`,
		id, until.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save snooze %d: %w", id, err)
	}

	return nil
}

// Clear removes the record for id.
func (r *SQLiteRepository) Clear(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM snoozes WHERE alarm_id = ?`, id); err != nil {
		return fmt.Errorf("clear snooze %d: %w", id, err)
	}

	return nil
}

// ClearAll removes every record.
func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM snoozes`); err != nil {
		return fmt.Errorf("clear snoozes: %w", err)
	}

	return nil
}
