package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/carepipe/audit"
	auditbadger "github.com/poiesic/carepipe/audit/badger"
	"github.com/poiesic/carepipe/config"
)

// Diagnostic is one recorded error or warning.
type Diagnostic struct {
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// StageTiming tracks the wall-clock span of a single stage. The record is
// created by StartStage and sealed by EndStage; Duration is only valid once
// sealed.
type StageTiming struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
	sealed   bool
}

// Context maintains state during one pipeline execution. It tracks the
// run's configuration, intermediate results between stages, output options,
// and execution metadata.
//
// A Context lives exactly as long as one pipeline run and is never reused.
// Stage workers running concurrently share it: every mutating method takes
// the internal lock, each worker only writes its own result slot, and the
// diagnostic lists are append-only.
type Context struct {
	// PipelineID is the unique run identifier, generated at construction
	// and immutable afterwards.
	PipelineID string
	Name       string
	Config     config.Config

	// Output options used by the export helpers.
	OutputPath   string
	ShowSummary  bool
	PrintModel   bool
	Pretty       bool
	Verbose      bool

	StartTime time.Time

	mu             sync.Mutex
	endTime        time.Time
	stageTimings   map[string]*StageTiming
	executedStages []string
	errors         []Diagnostic
	warnings       []Diagnostic

	// Per-stage result slots. Populated only via EndStage; no stage writes
	// another stage's slot.
	IngestedData     any
	DeidentifiedData any
	ChunkedData      any
	EmbeddedData     any
	VectorStoreData  any

	auditLogger *audit.Logger
	tracking    audit.TrackingRepository
	logger      *slog.Logger
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithOutputPath sets the base path stage export files derive from.
func WithOutputPath(path string) ContextOption {
	return func(c *Context) { c.OutputPath = path }
}

// WithShowSummary requests a logged execution summary after the run.
func WithShowSummary(show bool) ContextOption {
	return func(c *Context) { c.ShowSummary = show }
}

// WithPrintModel requests the final result be printed or exported.
func WithPrintModel(print bool) ContextOption {
	return func(c *Context) { c.PrintModel = print }
}

// WithPretty toggles indented JSON output. Default is true.
func WithPretty(pretty bool) ContextOption {
	return func(c *Context) { c.Pretty = pretty }
}

// WithVerbose toggles verbose output.
func WithVerbose(verbose bool) ContextOption {
	return func(c *Context) { c.Verbose = verbose }
}

// WithContextLogger sets a custom logger. Default is slog.Default().
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContext creates a pipeline execution context. The audit trail is
// initialized from the "audit" config section when enabled; failure to
// acquire the audit backend never prevents the pipeline from running.
func NewContext(name string, cfg config.Config, opts ...ContextOption) *Context {
	c := &Context{
		PipelineID:   uuid.NewString(),
		Name:         name,
		Config:       cfg,
		Pretty:       true,
		StartTime:    time.Now(),
		stageTimings: make(map[string]*StageTiming),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("pipeline", c.Name, "run", shortID(c.PipelineID))
	c.initAudit()

	c.logger.Info("pipeline context initialized")
	return c
}

// shortID returns the log-friendly prefix of a run identifier.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// initAudit wires the optional audit trail. The tracking repository is
// keyed off the "audit" config section; any acquisition failure downgrades
// to a no-op rather than failing the run.
func (c *Context) initAudit() {
	auditCfg := c.Config.Sub("audit")
	if auditCfg == nil || !config.Bool(auditCfg, "enabled", false) {
		c.logger.Debug("audit logging disabled in configuration")
		return
	}

	repo, err := auditbadger.Open(
		config.String(auditCfg, "path", ""),
		config.Bool(auditCfg, "in_memory", false),
	)
	if err != nil {
		c.logger.Warn("failed to initialize audit trail, continuing without it", "err", err)
		return
	}

	if err := repo.StartPipelineRun(c.PipelineID, c.Name); err != nil {
		c.logger.Warn("failed to start pipeline run tracking, continuing without it", "err", err)
		repo.Close()
		return
	}

	c.tracking = repo
	c.auditLogger = audit.NewLogger(c.PipelineID, repo)
	c.auditLogger.LogPipelineStarted(c.Name)
	c.logger.Info("audit trail initialized")
}

// StartStage records the start timestamp of a stage. Starting the same
// stage twice overwrites the timing record; stages run once per context.
func (c *Context) StartStage(name string) {
	c.logger.Info("starting stage", "stage", name)

	c.mu.Lock()
	c.stageTimings[name] = &StageTiming{Start: time.Now()}
	c.mu.Unlock()

	c.auditLogger.LogStageStarted(name)
}

// EndStage seals the stage's timing record, stores the result into the
// stage-specific slot, and appends the stage to the executed list. This is
// the only path that populates result slots.
func (c *Context) EndStage(name string, result any) {
	end := time.Now()
	var duration time.Duration
	untracked := false

	c.mu.Lock()
	timing, ok := c.stageTimings[name]
	if ok {
		timing.End = end
		timing.Duration = end.Sub(timing.Start)
		timing.sealed = true
		duration = timing.Duration
	} else {
		untracked = true
	}

	switch name {
	case StageIngestion:
		c.IngestedData = result
	case StageDeid:
		c.DeidentifiedData = result
	case StageChunking:
		c.ChunkedData = result
	case StageEmbedding:
		c.EmbeddedData = result
	case StageVectorStore:
		c.VectorStoreData = result
	}

	c.executedStages = append(c.executedStages, name)
	c.mu.Unlock()

	if untracked {
		c.AddWarning("executor", "ended untracked stage: "+name, nil)
	} else {
		c.logger.Info("completed stage", "stage", name, "duration", duration, "items", countItems(result))
	}

	c.auditLogger.LogStageCompleted(name, duration)
}

// AddError records an error that occurred during pipeline execution.
func (c *Context) AddError(stage, message string, details map[string]any) {
	d := Diagnostic{Stage: stage, Message: message, Timestamp: time.Now(), Details: details}

	c.mu.Lock()
	c.errors = append(c.errors, d)
	c.mu.Unlock()

	c.logger.Error("error in stage", "stage", stage, "message", message)
	c.auditLogger.LogError(stage, message, details)
}

// AddWarning records a warning that occurred during pipeline execution.
func (c *Context) AddWarning(stage, message string, details map[string]any) {
	d := Diagnostic{Stage: stage, Message: message, Timestamp: time.Now(), Details: details}

	c.mu.Lock()
	c.warnings = append(c.warnings, d)
	c.mu.Unlock()

	c.logger.Warn("warning in stage", "stage", stage, "message", message)
	c.auditLogger.LogWarning(stage, message, details)
}

// Errors returns a copy of the recorded error diagnostics.
func (c *Context) Errors() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.errors))
	copy(out, c.errors)
	return out
}

// Warnings returns a copy of the recorded warning diagnostics.
func (c *Context) Warnings() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// ExecutedStages returns the stage names in completion order.
func (c *Context) ExecutedStages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.executedStages))
	copy(out, c.executedStages)
	return out
}

// StageDuration returns the sealed duration for a stage, if any.
func (c *Context) StageDuration(name string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.stageTimings[name]; ok && t.sealed {
		return t.Duration, true
	}
	return 0, false
}

// stageAliases maps stage names to the alternate configuration keys
// accepted for backward compatibility.
var stageAliases = map[string][]string{
	StageIngestion:   {"ingester", "ingest"},
	StageDeid:        {"deidentify", "deidentification", "de-id"},
	StageChunking:    {"chunker", "chunk"},
	StageEmbedding:   {"embedder", "embed"},
	StageVectorStore: {"vector_store", "vector-store"},
}

// lookupStageConfig resolves the configuration mapping for a stage,
// reporting whether any was found.
func (c *Context) lookupStageConfig(name string) (map[string]any, bool) {
	if m := c.Config.Sub(name); m != nil {
		return m, true
	}

	// The vectorstore section commonly lives at the config top level.
	if name == StageVectorStore {
		if m := c.Config.Sub("vectorstore"); m != nil {
			return m, true
		}
	}

	for _, alias := range stageAliases[name] {
		if m := c.Config.Sub(alias); m != nil {
			c.logger.Debug("found stage config under alternate name", "stage", name, "alias", alias)
			return m, true
		}
	}

	return nil, false
}

// GetStageConfig returns the configuration for a stage, trying alternate
// key names when the canonical one is absent. Returns an empty mapping,
// never nil, when nothing is found.
func (c *Context) GetStageConfig(name string) map[string]any {
	if m, ok := c.lookupStageConfig(name); ok {
		return m
	}
	c.logger.Warn("no configuration found for stage", "stage", name)
	return map[string]any{}
}

// IsStageEnabled reports whether a stage should run. An explicit "enabled"
// flag in the stage's configuration always wins; otherwise the legacy
// presence-based rules apply.
func (c *Context) IsStageEnabled(name string) bool {
	cfg, found := c.lookupStageConfig(name)

	if found {
		if enabled, ok := cfg["enabled"].(bool); ok {
			return enabled
		}
	}

	return resolveLegacyEnablement(c.Config, name, cfg, found)
}

// resolveLegacyEnablement is the backward-compatibility shim conflating
// "config present" with "stage enabled": chunking turns on whenever a
// top-level chunker key exists, any stage with a non-empty config section
// is implicitly enabled, and ingestion is always on. Kept separate from
// the explicit-flag check so both behaviors stay independently testable.
func resolveLegacyEnablement(cfg config.Config, name string, stageCfg map[string]any, found bool) bool {
	if name == StageChunking && cfg.Has("chunker") {
		return true
	}
	if found && len(stageCfg) > 0 {
		return true
	}
	return name == StageIngestion
}

// RunSummary describes one completed (or aborted) pipeline execution.
type RunSummary struct {
	PipelineID     string             `json:"pipeline_id"`
	Name           string             `json:"name"`
	StartTime      time.Time          `json:"start_time"`
	EndTime        time.Time          `json:"end_time"`
	TotalDuration  float64            `json:"total_duration"` // seconds
	ExecutedStages []string           `json:"executed_stages"`
	StageTimings   map[string]float64 `json:"stage_timings"` // seconds, sealed stages only
	ResultCounts   map[string]int     `json:"result_counts"`
	ErrorCount     int                `json:"error_count"`
	WarningCount   int                `json:"warning_count"`
}

// GetSummary generates the execution summary. The first call seals the
// run's end time and flushes the terminal audit events; subsequent calls
// return the same timestamps and never advance the end time.
func (c *Context) GetSummary() RunSummary {
	c.mu.Lock()

	sealed := false
	if c.endTime.IsZero() {
		c.endTime = time.Now()
		sealed = true
	}

	timings := make(map[string]float64)
	for name, t := range c.stageTimings {
		if t.sealed {
			timings[name] = t.Duration.Seconds()
		}
	}

	counts := make(map[string]int)
	if n := countItems(c.IngestedData); n > 0 {
		counts["ingested"] = n
	}
	if n := countItems(c.ChunkedData); n > 0 {
		counts["chunked"] = n
	}

	summary := RunSummary{
		PipelineID:     c.PipelineID,
		Name:           c.Name,
		StartTime:      c.StartTime,
		EndTime:        c.endTime,
		TotalDuration:  c.endTime.Sub(c.StartTime).Seconds(),
		ExecutedStages: append([]string(nil), c.executedStages...),
		StageTimings:   timings,
		ResultCounts:   counts,
		ErrorCount:     len(c.errors),
		WarningCount:   len(c.warnings),
	}

	errCount := len(c.errors)
	c.mu.Unlock()

	if sealed {
		c.flushAudit(errCount, summary.TotalDuration)
	}

	return summary
}

// flushAudit emits the terminal audit events exactly once per run.
func (c *Context) flushAudit(errCount int, totalSeconds float64) {
	if errCount > 0 {
		c.auditLogger.LogPipelineFailed(c.Name, errCount)
	} else {
		c.auditLogger.LogPipelineCompleted(c.Name, totalSeconds)
	}

	if c.tracking != nil {
		status := "completed"
		if errCount > 0 {
			status = "failed"
		}
		if err := c.tracking.CompletePipelineRun(c.PipelineID, status); err != nil {
			c.logger.Warn("failed to complete pipeline run tracking", "err", err)
		}
	}
}

// Close releases the optional audit backend. Safe to call when auditing
// was never initialized.
func (c *Context) Close() error {
	if c.tracking != nil {
		return c.tracking.Close()
	}
	return nil
}
