package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// BalanceStatus is the lifecycle state of a balance run.
type BalanceStatus string

const (
	BalanceRunning   BalanceStatus = "running"
	BalanceCompleted BalanceStatus = "completed"
	BalancePartial   BalanceStatus = "partial"
	BalanceDryRun    BalanceStatus = "dry_run"
)

// BalanceRun records one balance invocation against a dataset directory.
type BalanceRun struct {
	ID          string        `json:"id"`
	DatasetRoot string        `json:"dataset_root"`
	Target      int           `json:"target"`
	Planned     int           `json:"planned"`
	Removed     int           `json:"removed"`
	Status      BalanceStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// RemovalRecord is one audited sample deletion.
type RemovalRecord struct {
	RunID     string    `json:"run_id"`
	Label     string    `json:"label"`
	Sample    string    `json:"sample"`
	RemovedAt time.Time `json:"removed_at"`
}

// BalanceRepository provides access to balance runs and their removals.
type BalanceRepository struct {
	db *sql.DB
}

// BalanceRuns returns the balance run repository for this store.
func (s *Store) BalanceRuns() *BalanceRepository {
	return &BalanceRepository{db: s.db}
}

// Create inserts a new run. An empty ID is replaced with a fresh UUID and an
// empty status defaults to running.
func (r *BalanceRepository) Create(run *BalanceRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = BalanceRunning
	}
	run.StartedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO balance_runs (id, dataset_root, target, planned, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.DatasetRoot, run.Target, run.Planned, string(run.Status), run.StartedAt,
	)
	return err
}

// AddRemoval appends a removal to a run's audit trail.
func (r *BalanceRepository) AddRemoval(runID, label, sample string) error {
	_, err := r.db.Exec(
		`INSERT INTO balance_removals (run_id, label, sample, removed_at) VALUES (?, ?, ?, ?)`,
		runID, label, sample, time.Now(),
	)
	return err
}

// Finish marks a run as finished with the given status and error message.
func (r *BalanceRepository) Finish(id string, status BalanceStatus, errMsg string) error {
	result, err := r.db.Exec(
		`UPDATE balance_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const balanceRunColumns = `r.id, r.dataset_root, r.target, r.planned, r.status, r.error, r.started_at, r.finished_at,
	(SELECT COUNT(*) FROM balance_removals m WHERE m.run_id = r.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalanceRun(row rowScanner) (*BalanceRun, error) {
	run := &BalanceRun{}
	var status string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.DatasetRoot, &run.Target, &run.Planned, &status, &run.Error,
		&run.StartedAt, &finished, &run.Removed)
	if err != nil {
		return nil, err
	}

	run.Status = BalanceStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *BalanceRepository) GetByID(id string) (*BalanceRun, error) {
	run, err := scanBalanceRun(r.db.QueryRow(
		`SELECT `+balanceRunColumns+` FROM balance_runs r WHERE r.id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. limit <= 0 returns all runs.
func (r *BalanceRepository) List(limit int) ([]*BalanceRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+balanceRunColumns+` FROM balance_runs r ORDER BY r.started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*BalanceRun
	for rows.Next() {
		run, err := scanBalanceRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Removals returns the audited removals of a run in the order they happened.
func (r *BalanceRepository) Removals(runID string) ([]RemovalRecord, error) {
	rows, err := r.db.Query(
		`SELECT run_id, label, sample, removed_at FROM balance_removals WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RemovalRecord
	for rows.Next() {
		var rec RemovalRecord
		if err := rows.Scan(&rec.RunID, &rec.Label, &rec.Sample, &rec.RemovedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
