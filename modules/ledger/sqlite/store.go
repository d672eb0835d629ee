package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/ledger"
)

// Store implements ledger.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) BeginRun(ctx context.Context, run ledger.Run) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("sqlite: marshal stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, mode, transform, workers, epochs, started_at, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Mode, run.Transform, run.Workers, run.Epochs,
		formatTime(run.StartedAt), string(stats),
	)
	if err != nil {
		return fmt.Errorf("sqlite: begin run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, id, status, errMsg string, stats executor.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("sqlite: marshal stats: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, stats = ?, finished_at = ?
		WHERE id = ?`,
		status, errMsg, string(data), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: finish run: %w", err)
	}
	return requireRow(res)
}

func (s *Store) RecordEpoch(ctx context.Context, epoch ledger.Epoch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE runs SET epochs = MAX(epochs, ?) WHERE id = ?`, epoch.Number, epoch.RunID)
	if err != nil {
		return fmt.Errorf("sqlite: record epoch: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO epochs (run_id, number, items, session, duration_ns, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		epoch.RunID, epoch.Number, epoch.Items, epoch.Session, int64(epoch.Duration), formatTime(epoch.At),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record epoch: %w", err)
	}
	return tx.Commit()
}

func (s *Store) RecordSnapshot(ctx context.Context, snap ledger.Snapshot) error {
	data, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("sqlite: marshal stats: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, at, stats)
		SELECT id, ?, ? FROM runs WHERE id = ?`,
		formatTime(snap.At), string(data), snap.RunID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record snapshot: %w", err)
	}
	return requireRow(res)
}

const runColumns = `id, status, mode, transform, workers, epochs, started_at, finished_at, error, stats`

func (s *Store) Runs(ctx context.Context, limit int) ([]ledger.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []ledger.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) Run(ctx context.Context, id string) (ledger.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Run{}, ledger.ErrRunNotFound
	}
	return run, err
}

func (s *Store) Epochs(ctx context.Context, runID string) ([]ledger.Epoch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, number, items, session, duration_ns, at
		FROM epochs WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list epochs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var epochs []ledger.Epoch
	for rows.Next() {
		var (
			e        ledger.Epoch
			duration int64
			at       string
		)
		if err := rows.Scan(&e.RunID, &e.Number, &e.Items, &e.Session, &duration, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan epoch: %w", err)
		}
		e.Duration = time.Duration(duration)
		e.At = parseTime(at)
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

func (s *Store) Snapshots(ctx context.Context, runID string, limit int) ([]ledger.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, stats FROM snapshots
		WHERE run_id = ? ORDER BY seq DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []ledger.Snapshot
	for rows.Next() {
		var (
			snap  ledger.Snapshot
			at    string
			stats string
		)
		if err := rows.Scan(&snap.RunID, &at, &stats); err != nil {
			return nil, fmt.Errorf("sqlite: scan snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(stats), &snap.Stats); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal snapshot stats: %w", err)
		}
		snap.At = parseTime(at)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *Store) PruneSnapshots(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (ledger.Run, error) {
	var (
		run               ledger.Run
		started, finished string
		stats             string
	)
	err := row.Scan(&run.ID, &run.Status, &run.Mode, &run.Transform, &run.Workers, &run.Epochs,
		&started, &finished, &run.Error, &stats)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("sqlite: scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return run, fmt.Errorf("sqlite: unmarshal run stats: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrRunNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
