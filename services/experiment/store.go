package experiment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lumenlabs/lumen/pkg/config"
)

// Store defines the interface for experiment storage operations.
type Store interface {
	// CreateExperimentWithRuns persists an experiment and its runs as
	// one unit. All records start pending.
	CreateExperimentWithRuns(ctx context.Context, exp *Experiment) error

	// GetExperiment returns the full detail including runs and
	// responses, or nil when the id is unknown.
	GetExperiment(ctx context.Context, id string) (*Experiment, error)

	// ListExperiments returns summaries ordered by creation time
	// descending.
	ListExperiments(ctx context.Context) ([]Summary, error)

	// UpdateRunStatus transitions a run and, for terminal statuses,
	// persists the response in the same write. Illegal transitions
	// return ErrInvalidTransition.
	UpdateRunStatus(ctx context.Context, runID string, status Status, resp *Response) error

	// UpdateExperimentStatus transitions an experiment.
	UpdateExperimentStatus(ctx context.Context, id string, status Status) error

	// ListStaleRuns returns runs stuck running since before the cutoff.
	ListStaleRuns(ctx context.Context, cutoff time.Time) ([]*Run, error)
}

// StoreOptions contains configuration for creating a store.
type StoreOptions struct {
	Backend config.StorageBackend
	DB      *sql.DB
}

// NewStore creates a new Store based on the provided options.
func NewStore(opts StoreOptions) (Store, error) {
	switch opts.Backend {
	case config.StoragePostgres:
		if opts.DB == nil {
			return nil, fmt.Errorf("database connection required for postgres backend")
		}
		return NewPostgresStore(opts.DB), nil
	case config.StorageMemory:
		return NewMemoryStore(), nil
	default:
		return NewMemoryStore(), nil
	}
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment // id -> experiment with runs inline
	runOwner    map[string]string      // run id -> experiment id
}

// NewMemoryStore creates a new in-memory experiment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		runOwner:    make(map[string]string),
	}
}

func (s *MemoryStore) CreateExperimentWithRuns(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.experiments[exp.ID]; exists {
		return fmt.Errorf("experiment already exists: %s", exp.ID)
	}

	s.experiments[exp.ID] = CopyExperiment(exp)
	for _, r := range exp.Runs {
		s.runOwner[r.ID] = exp.ID
	}

	return nil
}

func (s *MemoryStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, nil
	}

	return CopyExperiment(exp), nil
}

func (s *MemoryStore) ListExperiments(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.experiments))
	for _, exp := range s.experiments {
		summaries = append(summaries, exp.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

func (s *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status Status, resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.findRun(runID)
	if err != nil {
		return err
	}

	if err := ValidateRunTransition(run.Status, status); err != nil {
		return err
	}

	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	if resp != nil {
		resp = CopyResponse(resp)
		resp.RunID = runID
		if resp.CreatedAt.IsZero() {
			resp.CreatedAt = run.UpdatedAt
		}
		run.Response = resp
	}

	return nil
}

func (s *MemoryStore) UpdateExperimentStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[id]
	if !ok {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}

	if err := ValidateExperimentTransition(exp.Status, status); err != nil {
		return err
	}

	exp.Status = status
	exp.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListStaleRuns(ctx context.Context, cutoff time.Time) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*Run
	for _, exp := range s.experiments {
		for _, r := range exp.Runs {
			if r.Status == StatusRunning && r.UpdatedAt.Before(cutoff) {
				stale = append(stale, CopyRun(r))
			}
		}
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

func (s *MemoryStore) findRun(runID string) (*Run, error) {
	expID, ok := s.runOwner[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	for _, r := range s.experiments[expID].Runs {
		if r.ID == runID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
}

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL experiment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateExperimentWithRuns(ctx context.Context, exp *Experiment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO experiments (id, name, user_prompt, model_name, total_runs, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exp.ID, nullString(exp.Name), exp.UserPrompt, exp.ModelName,
		exp.TotalRuns, string(exp.Status), exp.CreatedAt, exp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	for _, r := range exp.Runs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO experiment_runs (id, experiment_id, temperature, top_p, max_output_tokens, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, exp.ID, r.Temperature, r.TopP, r.MaxOutputTokens,
			string(r.Status), r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	exp := &Experiment{}
	var name sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, user_prompt, model_name, total_runs, status, created_at, updated_at
		FROM experiments WHERE id = $1`, id,
	).Scan(&exp.ID, &name, &exp.UserPrompt, &exp.ModelName,
		&exp.TotalRuns, &exp.Status, &exp.CreatedAt, &exp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	exp.Name = name.String

	runs, err := s.loadRuns(ctx, id)
	if err != nil {
		return nil, err
	}
	exp.Runs = runs

	return exp, nil
}

func (s *PostgresStore) loadRuns(ctx context.Context, experimentID string) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.experiment_id, r.temperature, r.top_p, r.max_output_tokens,
		       r.status, r.created_at, r.updated_at,
		       resp.id, resp.generated_text, resp.status, resp.error_message,
		       resp.latency_ms, resp.total_words, resp.total_sentences, resp.metrics,
		       resp.created_at
		FROM experiment_runs r
		LEFT JOIN response_records resp ON resp.run_id = r.id
		WHERE r.experiment_id = $1
		ORDER BY r.created_at, r.id`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var (
			respID        sql.NullString
			generatedText sql.NullString
			respStatus    sql.NullString
			errorMessage  sql.NullString
			latencyMs     sql.NullFloat64
			totalWords    sql.NullInt64
			totalSents    sql.NullInt64
			metricsJSON   []byte
			respCreatedAt sql.NullTime
		)

		err := rows.Scan(
			&run.ID, &run.ExperimentID, &run.Temperature, &run.TopP, &run.MaxOutputTokens,
			&run.Status, &run.CreatedAt, &run.UpdatedAt,
			&respID, &generatedText, &respStatus, &errorMessage,
			&latencyMs, &totalWords, &totalSents, &metricsJSON, &respCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if respID.Valid {
			resp := &Response{
				ID:             respID.String,
				RunID:          run.ID,
				GeneratedText:  generatedText.String,
				Status:         Status(respStatus.String),
				ErrorMessage:   errorMessage.String,
				LatencyMs:      latencyMs.Float64,
				TotalWords:     int(totalWords.Int64),
				TotalSentences: int(totalSents.Int64),
				CreatedAt:      respCreatedAt.Time,
			}
			if len(metricsJSON) > 0 {
				if err := json.Unmarshal(metricsJSON, &resp.Metrics); err != nil {
					return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
				}
			}
			run.Response = resp
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *PostgresStore) ListExperiments(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, total_runs, status, created_at
		FROM experiments
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiments: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var sum Summary
		var name sql.NullString
		if err := rows.Scan(&sum.ID, &name, &sum.TotalRuns, &sum.Status, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		sum.Name = name.String
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status Status, resp *Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM experiment_runs WHERE id = $1 FOR UPDATE`, runID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}

	if err := ValidateRunTransition(current, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE experiment_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if resp != nil {
		metricsJSON, err := json.Marshal(resp.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		createdAt := resp.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO response_records (id, run_id, generated_text, status, error_message,
			                              latency_ms, total_words, total_sentences, metrics, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			resp.ID, runID, nullString(resp.GeneratedText), string(resp.Status),
			nullString(resp.ErrorMessage), resp.LatencyMs, resp.TotalWords,
			resp.TotalSentences, metricsJSON, createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert response: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) UpdateExperimentStatus(ctx context.Context, id string, status Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM experiments WHERE id = $1 FOR UPDATE`, id,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get experiment status: %w", err)
	}

	if err := ValidateExperimentTransition(current, status); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE experiments SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) ListStaleRuns(ctx context.Context, cutoff time.Time) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, experiment_id, temperature, top_p, max_output_tokens, status, created_at, updated_at
		FROM experiment_runs
		WHERE status = $1 AND updated_at < $2
		ORDER BY id`, string(StatusRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale runs: %w", err)
	}
	defer rows.Close()

	var stale []*Run
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(&run.ID, &run.ExperimentID, &run.Temperature, &run.TopP,
			&run.MaxOutputTokens, &run.Status, &run.CreatedAt, &run.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale run: %w", err)
		}
		stale = append(stale, run)
	}

	return stale, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
