package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one recorded conformance run.
type Run struct {
	ID    string `json:"id"`
	Suite string `json:"suite,omitempty"`
	Name  string `json:"name,omitempty"`

	Emulator  string `json:"emulator"`
	ROM       string `json:"rom"`
	Reference string `json:"reference"`

	// Steps is the number of steps that matched before the run ended.
	Steps int `json:"steps"`

	// Outcome is the run's kind ("pass", "field_mismatch", ...).
	Outcome    string   `json:"outcome"`
	FailedStep int      `json:"failed_step,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Message    string   `json:"message,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Record appends a run. The ID must be unique.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("record run: empty id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, suite, name, emulator, rom, reference, steps, outcome, failed_step, fields, message, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Suite,
		r.Name,
		r.Emulator,
		r.ROM,
		r.Reference,
		r.Steps,
		r.Outcome,
		r.FailedStep,
		strings.Join(r.Fields, " "),
		r.Message,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	// Limit caps the number of runs returned. Zero means no limit.
	Limit int

	// Outcome keeps only runs with this outcome when set.
	Outcome string

	// Suite keeps only runs of this suite when set.
	Suite string
}

const selectRuns = `
	SELECT id, suite, name, emulator, rom, reference, steps, outcome, failed_step, fields, message, started_at, duration_ms
	FROM runs
`

// List returns runs, most recently recorded first.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	query := selectRuns
	var where []string
	var args []any
	if opts.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, opts.Outcome)
	}
	if opts.Suite != "" {
		where = append(where, "suite = ?")
		args = append(args, opts.Suite)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with the given ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r          Run
		fields     string
		startedAt  string
		durationMS int64
	)
	err := sc.Scan(
		&r.ID,
		&r.Suite,
		&r.Name,
		&r.Emulator,
		&r.ROM,
		&r.Reference,
		&r.Steps,
		&r.Outcome,
		&r.FailedStep,
		&fields,
		&r.Message,
		&startedAt,
		&durationMS,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if fields != "" {
		r.Fields = strings.Split(fields, " ")
	}
	r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("scan run %s: started_at: %w", r.ID, err)
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return r, nil
}
