package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlabs/lumen/pkg/cache"
)

const (
	listCacheKey    = "experiments:list"
	dispatchTimeout = 30 * time.Minute
)

// Service coordinates experiment submission, reads, and CSV export.
type Service struct {
	store        Store
	orchestrator *Orchestrator
	logger       *slog.Logger

	cacheClient *cache.Client
	detailCache *cache.CacheAside[*Experiment]
	listCache   *cache.CacheAside[[]Summary]
}

// NewService creates the experiment service.
func NewService(store Store, orchestrator *Orchestrator, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// WithCache enables cache-aside reads through Redis.
func (s *Service) WithCache(client *cache.Client, ttl time.Duration) *Service {
	s.cacheClient = client
	s.detailCache = cache.NewCacheAside[*Experiment](client, ttl).
		WithKeyFunc(func(id string) string { return "experiment:" + id })
	s.listCache = cache.NewCacheAside[[]Summary](client, ttl)
	return s
}

// Submit validates the submission, persists the experiment and its runs
// as pending, and starts asynchronous dispatch. It returns the created
// experiment immediately; callers observe progress via reads.
func (s *Service) Submit(ctx context.Context, create Create) (*Experiment, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	exp := &Experiment{
		ID:         uuid.New().String(),
		Name:       create.Name,
		UserPrompt: create.UserPrompt,
		ModelName:  create.ModelName,
		TotalRuns:  create.TotalRuns,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Runs:       make([]*Run, len(create.Runs)),
	}
	for i, rc := range create.Runs {
		exp.Runs[i] = &Run{
			ID:              uuid.New().String(),
			ExperimentID:    exp.ID,
			Temperature:     rc.Temperature,
			TopP:            rc.TopP,
			MaxOutputTokens: rc.MaxOutputTokens,
			Status:          StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	if err := s.store.CreateExperimentWithRuns(ctx, exp); err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}
	s.invalidate(ctx, exp.ID)

	s.logger.InfoContext(ctx, "experiment submitted",
		"experiment_id", exp.ID, "total_runs", exp.TotalRuns, "model", exp.ModelName)

	// Dispatch outlives the submitting request.
	go s.dispatch(exp.ID)

	return CopyExperiment(exp), nil
}

func (s *Service) dispatch(experimentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := s.orchestrator.Dispatch(ctx, experimentID); err != nil {
		s.logger.Error("experiment dispatch failed",
			"experiment_id", experimentID, "error", err)
	}
	s.invalidate(ctx, experimentID)
}

// Get returns the experiment detail, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Experiment, error) {
	load := func(ctx context.Context) (*Experiment, error) {
		return s.store.GetExperiment(ctx, id)
	}

	var exp *Experiment
	var err error
	if s.detailCache != nil {
		exp, err = s.detailCache.Get(ctx, id, load)
	} else {
		exp, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}

	return exp, nil
}

// List returns experiment summaries, newest first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	load := func(ctx context.Context) ([]Summary, error) {
		return s.store.ListExperiments(ctx)
	}

	var summaries []Summary
	var err error
	if s.listCache != nil {
		summaries, err = s.listCache.Get(ctx, listCacheKey, load)
	} else {
		summaries, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	return summaries, nil
}

// ExportCSV writes one row per run with the experiment's sampling
// parameters, outcome, and a column per metric key. Metric columns are
// the sorted union of all keys so the order is stable across rows.
func (s *Service) ExportCSV(ctx context.Context, id string, w io.Writer) error {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	metricKeys := collectMetricKeys(exp.Runs)

	header := []string{
		"temperature", "top_p", "max_output_tokens", "status",
		"generated_text", "error_message", "latency_ms",
		"total_words", "total_sentences",
	}
	header = append(header, metricKeys...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, run := range exp.Runs {
		row := []string{
			formatFloat(run.Temperature),
			formatFloat(run.TopP),
			strconv.Itoa(run.MaxOutputTokens),
			string(run.Status),
		}

		if resp := run.Response; resp != nil {
			row = append(row,
				resp.GeneratedText,
				resp.ErrorMessage,
				formatFloat(resp.LatencyMs),
				strconv.Itoa(resp.TotalWords),
				strconv.Itoa(resp.TotalSentences),
			)
			for _, key := range metricKeys {
				if v, ok := resp.Metrics[key]; ok {
					row = append(row, formatFloat(v))
				} else {
					row = append(row, "")
				}
			}
		} else {
			row = append(row, "", "", "", "", "")
			for range metricKeys {
				row = append(row, "")
			}
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func collectMetricKeys(runs []*Run) []string {
	seen := make(map[string]struct{})
	for _, run := range runs {
		if run.Response == nil {
			continue
		}
		for key := range run.Response.Metrics {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *Service) invalidate(ctx context.Context, experimentID string) {
	if s.detailCache == nil {
		return
	}
	if err := s.detailCache.Invalidate(ctx, experimentID); err != nil {
		s.logger.Warn("failed to invalidate experiment cache", "experiment_id", experimentID, "error", err)
	}
	if err := s.listCache.Invalidate(ctx, listCacheKey); err != nil {
		s.logger.Warn("failed to invalidate list cache", "error", err)
	}
}
