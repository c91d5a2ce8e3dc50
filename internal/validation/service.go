package validation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritax/internal/audit"
	"veritax/internal/catalog"
	"veritax/internal/engine"
	"veritax/internal/inject"
	"veritax/internal/offline"
	"veritax/internal/platform/config"
	"veritax/internal/preload"
	"veritax/internal/resolver"
	"veritax/internal/urlnorm"
	"veritax/internal/validation/metrics"
	"veritax/internal/validation/retention"
	"veritax/internal/worker"
	"veritax/pkg/domain"
	dErrors "veritax/pkg/domain-errors"
)

// Service drives the per-request validation state machine. All engine
// interaction is serialized by engineMu because the engine's model manager
// is not safe for concurrent load/validate calls; the catalog index is
// immutable and swapped atomically, so resolution reads need no lock.
type Service struct {
	cfg    config.Config
	eng    engine.Engine
	guard  *offline.Guard
	store  RunStore
	logger *slog.Logger

	engineMu sync.Mutex
	index    atomic.Pointer[catalog.Index]

	res *resolver.Resolver
	pre *preload.Preloader
	inj *inject.Injector

	pool    worker.Pool
	cache   retention.Cache
	metrics *metrics.Metrics
	events  audit.Publisher
	tracer  trace.Tracer
}

// Option configures optional service dependencies.
type Option func(*Service)

// WithPool overrides the worker pool. The default is an in-process
// single-slot pool around ExecuteTask.
func WithPool(pool worker.Pool) Option {
	return func(s *Service) { s.pool = pool }
}

// WithCache enables result retention caching.
func WithCache(cache retention.Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithMetrics enables validation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher sets the audit event sink.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// New constructs the validation service and builds the initial catalog
// index from the configured packages.
func New(cfg config.Config, eng engine.Engine, guard *offline.Guard, store RunStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		eng:    eng,
		guard:  guard,
		store:  store,
		logger: logger,
		events: audit.NopPublisher{},
		tracer: otel.Tracer("veritax/validation"),
	}
	s.res = resolver.New(eng, cfg.OfflineRoots, logger)
	s.pre = preload.New(eng, s.res, logger)
	s.inj = inject.New(eng, s.res, cfg.TempDir, cfg.DictionaryNamespaces, logger)

	idx := catalog.Build(logger, cfg.Packages)
	s.index.Store(idx)
	guard.SetPackagesLoaded(len(idx.Packages()))

	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = worker.NewLocalPool(s.ExecuteTask)
	}
	if s.metrics != nil {
		s.metrics.SetPackagesLoaded(len(idx.Packages()))
	}
	return s
}

// Close releases the worker pool.
func (s *Service) Close() error {
	return s.pool.Close()
}

// Validate runs the full state machine for one request and persists the
// run record on every outcome.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*Run, error) {
	ctx, span := s.tracer.Start(ctx, "validation.run")
	defer span.End()

	profileName, _ := s.cfg.ProfileNamed(req.Profile)
	run := &Run{
		ID:           domain.NewRunID(),
		InstancePath: req.InstancePath,
		Profile:      profileName,
		Stage:        StageReceived,
		Status:       "running",
		CreatedAt:    time.Now().UTC(),
	}
	span.SetAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.String("run.profile", profileName),
	)
	if err := s.store.Create(ctx, *run); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persisting run record")
	}
	s.events.Publish(ctx, audit.Event{Kind: audit.KindRunStarted, RunID: run.ID.String(), Profile: profileName})

	// Deployments pin a standing schema list in config; a request-level
	// list replaces it for that run only.
	schemas := req.DTSFirstSchemas
	if len(schemas) == 0 {
		schemas = s.cfg.DTSFirstSchemas
	}
	task := worker.Task{
		RunID:                run.ID.String(),
		InstancePath:         req.InstancePath,
		Profile:              profileName,
		CacheDir:             req.CacheDir,
		DTSFirstSchemas:      schemas,
		AllowInstanceRewrite: req.AllowInstanceRewrite,
	}
	result, err := s.pool.Run(ctx, task)
	if err != nil {
		s.finish(ctx, run, &worker.Result{Status: worker.StatusLoadFailed, Stage: StageReceived, Error: err.Error()})
		return run, err
	}

	s.finish(ctx, run, result)
	if result.Failed() {
		code := dErrors.CodeLoadFailed
		if result.Status == worker.StatusOfflineViolation {
			code = dErrors.CodeOfflineViolation
		}
		return run, dErrors.New(code, result.Error)
	}
	return run, nil
}

// finish records the terminal state, result cache entry, metrics and
// audit events for a run.
func (s *Service) finish(ctx context.Context, run *Run, result *worker.Result) {
	now := time.Now().UTC()
	run.Result = result
	run.Status = result.Status
	run.Stage = result.Stage
	if !result.Failed() {
		run.Stage = StageResultsReturned
	}
	run.CompletedAt = &now

	if err := s.store.Update(ctx, *run); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist run result", "run_id", run.ID, "error", err)
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, run.ID.String(), run); err != nil {
			s.logger.WarnContext(ctx, "failed to cache run result", "run_id", run.ID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(result.Status, run.Profile, now.Sub(run.CreatedAt))
		s.metrics.AddFetchAttempts(len(result.OfflineAttempts))
	}

	kind := audit.KindRunCompleted
	switch result.Status {
	case worker.StatusOfflineViolation:
		kind = audit.KindOfflineViolation
	case worker.StatusLoadFailed:
		kind = audit.KindRunFailed
	}
	s.events.Publish(ctx, audit.Event{
		Kind:    kind,
		RunID:   run.ID.String(),
		Profile: run.Profile,
		Status:  result.Status,
		Detail:  result.Error,
	})

	s.logger.InfoContext(ctx, "validation run finished",
		"run_id", run.ID,
		"profile", run.Profile,
		"status", result.Status,
		"facts", result.FactCount,
		"errors", len(result.Errors),
		"duration_ms", now.Sub(run.CreatedAt).Milliseconds(),
	)
}

// ExecuteTask runs the load+validate pair for one task in this process.
// It is the in-process pool's runner and the worker binary's entry point.
// Validation failures are expressed in the Result; the error return is
// reserved for infrastructure problems.
func (s *Service) ExecuteTask(ctx context.Context, task worker.Task) (*worker.Result, error) {
	ctx, span := s.tracer.Start(ctx, "validation.execute")
	defer span.End()

	start := time.Now()
	result := &worker.Result{Stage: StageReceived}
	fail := func(status, msg string) (*worker.Result, error) {
		result.Status = status
		result.Error = msg
		result.OfflineAttempts = s.guard.Attempts()
		result.Duration = time.Since(start)
		return result, nil
	}

	s.guard.Reset()
	idx := s.index.Load()

	if len(s.cfg.Packages) > 0 && len(idx.Packages()) == 0 {
		return fail(worker.StatusLoadFailed, "no taxonomy packages could be registered")
	}
	result.Stage = StagePackagesVerified
	packages := idx.PackagePaths()

	_, profile := s.cfg.ProfileNamed(task.Profile)
	instancePath := task.InstancePath

	// DTS-first preloading wins over injection whenever its schema list
	// is non-empty; the two repair the same gap through different paths.
	var preloaded *preload.Result
	switch {
	case s.cfg.Flags.EnableDTSFirst && len(task.DTSFirstSchemas) > 0:
		preloaded = s.pre.Preload(ctx, task.DTSFirstSchemas, idx, packages)
		result.Preload = preloaded.Provenance
		if s.metrics != nil {
			for _, p := range preloaded.Provenance {
				if p.Status == preload.StatusUnresolved {
					s.metrics.IncResolutionMiss()
				}
			}
		}
	case s.cfg.Flags.AllowInstanceRewrite && s.cfg.Flags.InjectSchemaRefs && task.AllowInstanceRewrite:
		missing, err := s.inj.DetectMissing(instancePath)
		if err != nil {
			return fail(worker.StatusLoadFailed, err.Error())
		}
		if len(missing) > 0 {
			record, err := s.inj.Inject(instancePath, missing, idx)
			if err != nil {
				s.logger.WarnContext(ctx, "schema-ref injection failed, loading original",
					"instance", instancePath, "error", err)
			} else {
				result.Injection = record
				if record.UsedTempFile {
					instancePath = record.TempPath
				}
			}
		}
	}

	// Engine serialized; Stage advances as load and validation complete
	// so a failure records how far the run got.
	report, facts, undefined, err := s.loadAndValidate(ctx, instancePath, packages, preloaded, profile, result)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeOfflineViolation) {
			return fail(worker.StatusOfflineViolation, dErrors.MessageOf(err))
		}
		return fail(worker.StatusLoadFailed, err.Error())
	}
	result.FactCount = facts
	result.UndefinedFactCount = undefined
	result.Errors = report.Errors
	result.Warnings = report.Warnings

	// A recorded fetch attempt turns success into a hard failure.
	if err := s.guard.Checkpoint("post-validation"); err != nil {
		return fail(worker.StatusOfflineViolation, dErrors.MessageOf(err))
	}
	result.Stage = StageOfflineChecked

	result.Status = worker.StatusValid
	if len(report.Errors) > 0 {
		result.Status = worker.StatusInvalid
	}
	result.OfflineAttempts = s.guard.Attempts()
	result.Duration = time.Since(start)
	return result, nil
}

// loadAndValidate holds the engine lock for the whole load+validate pair
// and releases the model on every exit path. It advances result.Stage as
// the instance is loaded and validated.
func (s *Service) loadAndValidate(ctx context.Context, instancePath string, packages []string, preloaded *preload.Result, profile config.Profile, result *worker.Result) (*engine.Report, int, int, error) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	src, err := s.eng.OpenSource(instancePath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open instance: %w", err)
	}
	defer src.Close()

	model, err := s.eng.Load(ctx, src, packages)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("load instance: %w", err)
	}
	defer model.Close()
	result.Stage = StageInstanceLoaded

	if err := s.guard.Checkpoint("post-load"); err != nil {
		return nil, 0, 0, err
	}

	if preloaded != nil && len(preloaded.Concepts) > 0 {
		added := preload.Merge(model, preloaded.Concepts)
		s.logger.InfoContext(ctx, "preloaded concepts merged",
			"collected", len(preloaded.Concepts), "added", added)
	}

	report, err := s.eng.Validate(ctx, model, engine.ValidateOptions{
		Formulas:       profile.Formulas,
		CSVConstraints: profile.CSVConstraints,
		Trace:          profile.Trace,
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("validate instance: %w", err)
	}
	result.Stage = StageValidated
	return report, model.FactCount(), model.UndefinedFactCount(), nil
}

// GetRun returns a run record, serving from the retention cache when
// possible.
func (s *Service) GetRun(ctx context.Context, id domain.RunID) (Run, error) {
	if s.cache != nil {
		var run Run
		ok, err := s.cache.Get(ctx, id.String(), &run)
		if err != nil {
			s.logger.WarnContext(ctx, "retention cache read failed", "run_id", id, "error", err)
		} else if ok {
			return run, nil
		}
	}
	return s.store.Get(ctx, id)
}

// ReloadPackages rebuilds the catalog index from the configured package
// paths and swaps it atomically. In-flight runs keep the index they
// started with.
func (s *Service) ReloadPackages(ctx context.Context) catalog.Snapshot {
	idx := catalog.Build(s.logger, s.cfg.Packages)
	s.index.Store(idx)
	s.guard.SetPackagesLoaded(len(idx.Packages()))
	if s.metrics != nil {
		s.metrics.SetPackagesLoaded(len(idx.Packages()))
	}
	snap := idx.Snapshot()
	s.events.Publish(ctx, audit.Event{
		Kind:   audit.KindPackagesReloaded,
		Detail: fmt.Sprintf("%d packages, %d rewriteURI, %d rewriteSystem", len(snap.Packages), snap.RewriteURICount, snap.RewriteSystemCount),
	})
	s.logger.InfoContext(ctx, "catalog index reloaded",
		"packages", len(snap.Packages),
		"rewrite_uri", snap.RewriteURICount,
		"rewrite_system", snap.RewriteSystemCount,
	)
	return snap
}

// OfflineStatus reports the guard's audit snapshot.
func (s *Service) OfflineStatus() offline.Status {
	return s.guard.Status()
}

// CatalogSnapshot reports the active index contents.
func (s *Service) CatalogSnapshot() catalog.Snapshot {
	return s.index.Load().Snapshot()
}

// Probe resolves a URL with per-variant diagnostics for operators chasing
// a resolution miss.
func (s *Service) Probe(url string) ProbeResult {
	idx := s.index.Load()
	out := ProbeResult{URL: url}
	for _, variant := range urlnorm.Variants(url, false) {
		pv := ProbeVariant{URL: variant}
		if entry, local, ok := idx.Match(variant); ok {
			pv.Matched = true
			pv.Prefix = entry.MatchPrefix
			pv.LocalPath = local
			if info, err := os.Stat(local); err == nil && info.Mode().IsRegular() {
				pv.Exists = true
			}
		}
		out.Variants = append(out.Variants, pv)
	}
	out.Resolution = s.res.Resolve(url, idx)
	if s.metrics != nil && !out.Resolution.Resolved() {
		s.metrics.IncResolutionMiss()
	}
	return out
}
