// Package server exposes refinement runs and grid searches over HTTP and
// JSON-RPC 2.0.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/quasarUnina/H2QGA/internal/config"
	"github.com/quasarUnina/H2QGA/internal/metrics"
	"github.com/quasarUnina/H2QGA/internal/optimization"
	"github.com/quasarUnina/H2QGA/internal/optimization/genetic"
	"github.com/quasarUnina/H2QGA/internal/optimization/gridsearch"
	"github.com/quasarUnina/H2QGA/internal/optimization/interval"
	"github.com/quasarUnina/H2QGA/internal/optimization/iterative"
	"github.com/quasarUnina/H2QGA/internal/optimization/quantum"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	errJobNotFound = errors.New("optimization not found")
	errJobFinished = errors.New("optimization already finished")
)

// JobState represents the state of a refinement job. It is guarded by the
// owning Server's mutex.
type JobState struct {
	ID          string
	Status      string
	Problem     string
	Label       string
	Depth       int
	RoundsDone  int
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Best        *optimization.Individual
	RoundBests  []*optimization.Individual
	Err         error
	CancelFunc  context.CancelFunc
}

// JobStatus is the externally visible snapshot of a JobState.
type JobStatus struct {
	ID         string                     `json:"optimization_id"`
	Status     string                     `json:"status"`
	Problem    string                     `json:"problem"`
	Label      string                     `json:"label"`
	Progress   float64                    `json:"progress"`
	RoundsDone int                        `json:"rounds_done"`
	Depth      int                        `json:"depth"`
	StartTime  string                     `json:"start_time"`
	EndTime    string                     `json:"end_time,omitempty"`
	LastUpdate string                     `json:"last_update"`
	Best       *optimization.Individual   `json:"best_solution,omitempty"`
	RoundBests []*optimization.Individual `json:"round_bests,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

func (j *JobState) snapshot() JobStatus {
	st := JobStatus{
		ID:         j.ID,
		Status:     j.Status,
		Problem:    j.Problem,
		Label:      j.Label,
		RoundsDone: j.RoundsDone,
		Depth:      j.Depth,
		StartTime:  j.StartTime.Format(time.RFC3339),
		LastUpdate: j.LastUpdated.Format(time.RFC3339),
		Best:       j.Best.Clone(),
	}
	if j.Depth > 0 {
		st.Progress = float64(j.RoundsDone) / float64(j.Depth)
	}
	if j.EndTime != nil {
		st.EndTime = j.EndTime.Format(time.RFC3339)
	}
	for _, b := range j.RoundBests {
		st.RoundBests = append(st.RoundBests, b.Clone())
	}
	if j.Err != nil {
		st.Error = j.Err.Error()
	}
	return st
}

func (j *JobState) terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages refinement jobs and provides endpoints to start, monitor, and
// cancel them, plus synchronous grid searches.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	oracle  *gridsearch.Oracle
	sem     *semaphore.Weighted

	mu   sync.RWMutex // protects jobs and every JobState in it
	jobs map[string]*JobState
	wg   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records job and grid metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new server instance with the given config and logger.
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.Named("server"),
		metrics: metrics.New(nil),
		sem:     semaphore.NewWeighted(int64(workers)),
		jobs:    make(map[string]*JobState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.oracle = gridsearch.NewOracle(cfg.Optimization.GridMaxPoints, logger)
	return s
}

// RegisterRoutes mounts the REST and JSON-RPC endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Post("/grid", s.handleGrid)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// startOptimization validates req, registers a pending job and runs it in the
// background.
func (s *Server) startOptimization(req OptimizeRequest) (JobStatus, error) {
	problem, err := req.Build(s.cfg.HQGA.NumBitCode)
	if err != nil {
		return JobStatus{}, err
	}
	params, err := req.Params.Refinement()
	if err != nil {
		return JobStatus{}, err
	}
	seed := s.cfg.Optimization.RandomSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job := &JobState{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Problem:     problem.Name,
		Label:       params.String(),
		Depth:       params.RefinementDepth(),
		StartTime:   now,
		LastUpdated: now,
		CancelFunc:  cancel,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	st := job.snapshot()
	s.mu.Unlock()

	s.logger.Info("Optimization queued",
		zap.String("optimization_id", job.ID),
		zap.String("problem", problem.Name),
		zap.String("params", job.Label),
	)

	s.wg.Add(1)
	go s.runOptimization(ctx, job, problem, params, seed)
	return st, nil
}

// runOptimization executes the refinement loop once a worker slot is free.
func (s *Server) runOptimization(ctx context.Context, job *JobState, problem *optimization.Problem,
	params optimization.RefinementParameters, seed uint64) {
	defer s.wg.Done()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finish(job, nil, nil, err)
		return
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	if job.terminal() {
		s.mu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.LastUpdated = time.Now()
	s.mu.Unlock()

	elitism := params.GA().Elitism
	start := time.Now()
	s.metrics.RunStarted()

	logger := s.logger.With(zap.String("optimization_id", job.ID))
	best, bests, err := s.refine(ctx, logger, job, problem, params, seed)

	status := s.finish(job, best, bests, err)
	s.metrics.RunFinished(elitism, status, time.Since(start))
	if status == StatusCompleted {
		s.metrics.BestFitness(problem.Name, best.Fitness)
	}
}

func (s *Server) refine(ctx context.Context, logger *zap.Logger, job *JobState, problem *optimization.Problem,
	params optimization.RefinementParameters, seed uint64) (*optimization.Individual, []*optimization.Individual, error) {
	circuit, err := quantum.NewCircuit(params.GA().PopSize, problem.ChromosomeLength())
	if err != nil {
		return nil, nil, err
	}
	runner := iterative.NewRunner(
		genetic.NewOptimizer(seed, logger),
		interval.Decoder{},
		iterative.WithLogger(logger),
		iterative.WithObserver(func(r iterative.Round) {
			s.metrics.RoundCompleted()
			s.mu.Lock()
			job.RoundsDone = r.Index + 1
			job.RoundBests = append(job.RoundBests, r.Best.Clone())
			job.LastUpdated = time.Now()
			s.mu.Unlock()
		}),
	)
	return runner.Run(ctx, quantum.NewSimulator(seed), circuit, params, problem)
}

// finish records the outcome of a job and returns its final status. A job
// cancelled through the API stays cancelled.
func (s *Server) finish(job *JobState, best *optimization.Individual, bests []*optimization.Individual, err error) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job.LastUpdated = now
	if job.EndTime == nil {
		job.EndTime = &now
	}

	switch {
	case job.Status == StatusCancelled:
	case errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
	case err != nil:
		job.Status = StatusFailed
		job.Err = err
		s.logger.Error("Optimization failed", zap.String("optimization_id", job.ID), zap.Error(err))
	default:
		job.Status = StatusCompleted
		job.Best = best
		job.RoundBests = bests
		s.logger.Info("Optimization completed",
			zap.String("optimization_id", job.ID),
			zap.Float64("best_fitness", best.Fitness),
			zap.String("best_solution", best.Phenotype),
		)
	}
	return job.Status
}

func (s *Server) optimizationStatus(id string) (JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return JobStatus{}, errJobNotFound
	}
	return job.snapshot(), nil
}

func (s *Server) cancelOptimization(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errJobNotFound
	}
	if job.terminal() {
		return optimization.WrapErrorf(errJobFinished, "status %s", job.Status)
	}

	job.CancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now

	s.logger.Info("Optimization cancelled", zap.String("optimization_id", id))
	return nil
}

func (s *Server) gridOptimum(ctx context.Context, req GridRequest) (*gridsearch.Result, error) {
	problem, err := req.Build(s.cfg.HQGA.NumBitCode)
	if err != nil {
		s.metrics.GridSearch(metrics.StatusFailed, 0)
		return nil, err
	}
	res, err := s.oracle.Optimum(ctx, problem, req.NumSolutions)
	if err != nil {
		s.metrics.GridSearch(metrics.StatusFailed, 0)
		return nil, err
	}
	points := 1
	for range problem.Dim() {
		points *= req.NumSolutions
	}
	s.metrics.GridSearch(metrics.StatusCompleted, points)
	return res, nil
}

// Close cancels every job and waits for the workers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	for _, job := range s.jobs {
		if job.CancelFunc != nil {
			job.CancelFunc()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, errJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, errJobFinished):
		return http.StatusConflict
	case errors.Is(err, optimization.ErrInvalidParameter), errors.Is(err, optimization.ErrUnknownProblem):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
