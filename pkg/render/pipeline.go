package render

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/observability"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/table"
)

// estWorkerMemoryMB is the assumed peak memory of one in-flight figure;
// worker auto-sizing divides available memory by it.
const estWorkerMemoryMB = 256

// Config configures a render pipeline.
type Config struct {
	// Collection names the collection being rendered
	Collection string
	// Root is the collection root directory
	Root string
	// PanelDir is the panel directory name under Root
	PanelDir string
	// Workers is the worker count (0 = auto)
	Workers int
	// ChunkSize is the number of rows per worker unit
	ChunkSize int
	// Strict promotes any per-panel failure to a fatal batch error
	Strict bool
	// Force re-renders panels with existing fresh artifacts
	Force bool
	// MemoryLimitMB caps auto-sized workers (0 = available memory)
	MemoryLimitMB int
	// Timeout bounds one panel render (0 = none)
	Timeout time.Duration
}

// Failure records one panel that did not reach StateWritten.
type Failure struct {
	Row    int        `json:"row"`
	Key    string     `json:"key"`
	State  PanelState `json:"state"`
	Reason string     `json:"reason"`
}

// Summary is the post-render report for one batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Format    Format
	// Source is the panel source derived from the produced format
	Source panels.Source
	// Artifacts holds one entry per row in row order; failed rows are nil
	Artifacts []*Artifact
	Failures  []Failure
}

// Pipeline renders a table's panel column across a worker pool. Workers
// share no mutable state beyond the append-only failure log and the
// collection format, both guarded by one mutex.
type Pipeline struct {
	config   Config
	registry *Registry
	logger   *zap.Logger

	mu        sync.Mutex
	format    Format
	formatSet bool
	formatErr error
	failures  []Failure
}

// NewPipeline creates a render pipeline. A nil registry uses the global
// adapter registry.
func NewPipeline(config Config, registry *Registry, logger *zap.Logger) *Pipeline {
	if registry == nil {
		registry = globalRegistry
	}
	if config.PanelDir == "" {
		config.PanelDir = "panels"
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 64
	}
	return &Pipeline{
		config:   config,
		registry: registry,
		logger:   logger,
	}
}

// Render renders every row of the panel column once. A failure on one
// row never aborts its siblings; failed rows are recorded and surfaced
// in the summary. Under Strict, a non-empty failure log becomes a fatal
// error after the whole batch has run. There is no cancellation short
// of the context: already-submitted chunks run to completion.
func (p *Pipeline) Render(ctx context.Context, t *table.Table, panelColumn string) (*Summary, error) {
	col, ok := t.Column(panelColumn)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "panel column %q not found", panelColumn)
	}

	panelDir := filepath.Join(p.config.Root, p.config.PanelDir)
	if err := os.MkdirAll(panelDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create panel directory")
	}

	workers := p.autoWorkers(t.Len())
	ctx, span := observability.StartSpan(ctx, "render.batch",
		attribute.String("collection", p.config.Collection),
		attribute.Int("rows", t.Len()),
		attribute.Int("workers", workers),
	)
	defer span.End()

	start := time.Now()
	p.logger.Info("render batch starting",
		zap.String("collection", p.config.Collection),
		zap.Int("rows", t.Len()),
		zap.Int("workers", workers))

	artifacts := make([]*Artifact, t.Len())

	chunks := make(chan [2]int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			activeWorkers.WithLabelValues(p.config.Collection).Inc()
			defer activeWorkers.WithLabelValues(p.config.Collection).Dec()
			for chunk := range chunks {
				for row := chunk[0]; row < chunk[1]; row++ {
					artifacts[row] = p.renderOne(ctx, t.Key(row), row, col.Values[row], panelDir)
				}
			}
		}()
	}

	for lo := 0; lo < t.Len(); lo += p.config.ChunkSize {
		hi := lo + p.config.ChunkSize
		if hi > t.Len() {
			hi = t.Len()
		}
		chunks <- [2]int{lo, hi}
	}
	close(chunks)
	wg.Wait()

	summary := p.summarize(t, artifacts)
	batchDuration.WithLabelValues(p.config.Collection).Observe(time.Since(start).Seconds())

	p.logger.Info("render batch finished",
		zap.String("collection", p.config.Collection),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", time.Since(start)))

	if p.formatErr != nil {
		return summary, p.formatErr
	}
	if p.config.Strict && summary.Failed > 0 {
		return summary, errors.Newf(errors.ErrorTypeRender,
			"strict mode: %d of %d panels failed", summary.Failed, summary.Total)
	}
	return summary, nil
}

// renderOne walks one panel through Pending -> Detecting -> Rendering ->
// {Written | Failed}. It returns nil on failure after recording it.
func (p *Pipeline) renderOne(ctx context.Context, key string, row int, value interface{}, panelDir string) *Artifact {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	if value == nil {
		p.recordFailure(Failure{Row: row, Key: key, State: StateDetecting, Reason: "panel value is null"})
		return nil
	}

	// Reuse a fresh artifact when the collection format is already
	// known. Skipping never changes the recorded reference.
	if art := p.reuseExisting(key, row, panelDir); art != nil {
		return art
	}

	// A thunk is forced exactly once, at rendering time, so peak memory
	// stays bounded to one in-flight figure per worker.
	if thunk, ok := value.(*Thunk); ok {
		value = thunk.Force()
		if value == nil {
			p.recordFailure(Failure{Row: row, Key: key, State: StateRendering, Reason: "panel thunk produced null"})
			return nil
		}
	}

	adapter, ok := p.registry.Detect(value)
	if !ok {
		p.recordFailure(Failure{Row: row, Key: key, State: StateDetecting,
			Reason: "unrecognized panel type"})
		return nil
	}

	if err := p.checkFormat(row, adapter.Format()); err != nil {
		p.recordFailure(Failure{Row: row, Key: key, State: StateRendering, Reason: err.Error()})
		return nil
	}

	slot := OutputSlot{Key: key, Row: row, Dir: panelDir}
	renderStart := time.Now()
	artifact, err := adapter.Render(ctx, value, slot)
	renderLatency.WithLabelValues(p.config.Collection, string(adapter.Format())).
		Observe(time.Since(renderStart).Seconds())

	if err != nil {
		panelsRendered.WithLabelValues(p.config.Collection, "failed").Inc()
		p.recordFailure(Failure{Row: row, Key: key, State: StateRendering, Reason: err.Error()})
		return nil
	}

	// The collection format is fixed by the first render that succeeds,
	// never by detection alone: a recognized panel whose render fails
	// must not constrain its siblings. A concurrent commit of another
	// format wins the race; the losing artifact is withdrawn.
	if err := p.commitFormat(row, adapter.Format()); err != nil {
		if !artifact.Inline() && artifact.Path != "" {
			_ = os.Remove(artifact.Path)
		}
		panelsRendered.WithLabelValues(p.config.Collection, "failed").Inc()
		p.recordFailure(Failure{Row: row, Key: key, State: StateRendering, Reason: err.Error()})
		return nil
	}

	panelsRendered.WithLabelValues(p.config.Collection, "written").Inc()
	return artifact
}

// reuseExisting returns a skip artifact when a file artifact for the
// current collection format already exists and Force is off.
func (p *Pipeline) reuseExisting(key string, row int, panelDir string) *Artifact {
	if p.config.Force {
		return nil
	}

	p.mu.Lock()
	format, set := p.format, p.formatSet
	p.mu.Unlock()
	if !set || format == FormatHTML {
		return nil
	}

	path := filepath.Join(panelDir, key+"."+format.Ext())
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return nil
	}

	panelsRendered.WithLabelValues(p.config.Collection, "skipped").Inc()
	return &Artifact{Key: key, Row: row, Format: format, Path: path, Skipped: true}
}

// checkFormat rejects a panel whose format contradicts an already
// fixed collection format. An unset format passes; only a successful
// render fixes it.
func (p *Pipeline) checkFormat(row int, format Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.formatSet && p.format != format {
		return p.mismatch(row, format)
	}
	return nil
}

// commitFormat fixes the collection format after a successful render.
// The first committer wins; a later commit of a different format is a
// mismatch naming the offending row.
func (p *Pipeline) commitFormat(row int, format Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.formatSet {
		p.format = format
		p.formatSet = true
		return nil
	}
	if p.format != format {
		return p.mismatch(row, format)
	}
	return nil
}

// mismatch builds the fatal mixed-format error and latches the first
// one for the batch. Callers hold p.mu.
func (p *Pipeline) mismatch(row int, format Format) error {
	err := errors.Newf(errors.ErrorTypeFormat,
		"panel at row %d produced %s but the collection renders %s; panel formats cannot mix",
		row, format, p.format).WithDetail("row", row)
	if p.formatErr == nil {
		p.formatErr = err
	}
	return err
}

func (p *Pipeline) recordFailure(f Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.State = StateFailed
	p.failures = append(p.failures, f)
}

func (p *Pipeline) summarize(t *table.Table, artifacts []*Artifact) *Summary {
	summary := &Summary{
		Total:     t.Len(),
		Artifacts: artifacts,
		Failures:  p.failures,
		Failed:    len(p.failures),
	}

	inline := false
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		summary.Succeeded++
		if a.Skipped {
			summary.Skipped++
		}
		if a.Inline() {
			inline = true
		}
	}

	if p.formatSet {
		summary.Format = p.format
		if inline {
			summary.Source = &panels.RawMarkup{}
		} else {
			summary.Source = &panels.LocalFile{Base: p.config.PanelDir, Ext: p.format.Ext()}
		}
	}
	return summary
}

// autoWorkers sizes the worker pool: the configured count, capped so
// that workers*estWorkerMemoryMB fits the memory budget, and never more
// than one worker per row.
func (p *Pipeline) autoWorkers(rows int) int {
	workers := p.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	budgetMB := p.config.MemoryLimitMB
	if budgetMB <= 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			budgetMB = int(vm.Available / (1024 * 1024))
		}
	}
	if budgetMB > 0 {
		if limit := budgetMB / estWorkerMemoryMB; limit > 0 && workers > limit {
			p.logger.Debug("capping render workers to memory budget",
				zap.Int("requested", workers),
				zap.Int("capped", limit),
				zap.Int("budget_mb", budgetMB))
			workers = limit
		}
	}

	if rows > 0 && workers > rows {
		workers = rows
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
