package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"

	"nebulaviz/internal/dataprocessing"
	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/infrastructure"
	"nebulaviz/internal/security"
	"nebulaviz/pkg/contracts/domain"
)

// DefaultMaxFileSize caps the encrypted payload read from disk
const DefaultMaxFileSize int64 = 64 << 20

// Options configures a Pipeline
type Options struct {
	AgendaPath  string
	KeyPath     string
	MaxFileSize int64
	Normalizer  *dataprocessing.Normalizer
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Metrics     *infrastructure.Metrics
	Clock       func() time.Time
}

// Pipeline turns one encrypted agenda file into insights and series.
// Runs are strictly sequential internally and share no mutable state, so a
// Pipeline may be reused, but callers should not run it concurrently against
// the same file (see services.AgendaService).
type Pipeline struct {
	agendaPath  string
	keyPath     string
	maxFileSize int64
	normalizer  *dataprocessing.Normalizer
	logger      *slog.Logger
	telemetry   *runTracer
	clock       func() time.Time

	// observeBuffer is called with the plaintext buffer right after decryption
	observeBuffer func(*security.SecureBuffer)
}

// NewPipeline validates opts and builds a pipeline
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.AgendaPath == "" {
		return nil, apperrors.NewConfigError("agenda file path is required", nil)
	}
	if opts.KeyPath == "" {
		return nil, apperrors.NewConfigError("key file path is required", nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = dataprocessing.NewNormalizer(opts.Logger, dataprocessing.DefaultNormalizerConfig())
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Pipeline{
		agendaPath:  opts.AgendaPath,
		keyPath:     opts.KeyPath,
		maxFileSize: opts.MaxFileSize,
		normalizer:  opts.Normalizer,
		logger:      opts.Logger.With(slog.String("component", "pipeline")),
		telemetry:   newRunTracer(opts.Tracer, opts.Metrics),
		clock:       opts.Clock,
	}, nil
}

// AgendaPath returns the encrypted file this pipeline reads
func (p *Pipeline) AgendaPath() string {
	return p.agendaPath
}

// Start runs the pipeline on its own goroutine. The returned channel receives
// exactly one Result and is then closed.
func (p *Pipeline) Start(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- p.Run(ctx)
	}()
	return out
}

// Run executes one full pass: read, decrypt, detect, normalize, aggregate.
// It never panics and never returns a partial result. The decrypted plaintext
// is zeroed before Run returns on every path.
func (p *Pipeline) Run(ctx context.Context) (result Result) {
	started := time.Now()
	result = emptyResult(infrastructure.NewID(), p.clock())

	ctx = infrastructure.EnsureTraceID(ctx, result.RunID)
	ctx, span := p.telemetry.startRun(ctx, result.RunID)
	logger := p.logger.With(slog.String("run_id", result.RunID))

	defer func() {
		if r := recover(); r != nil {
			failed := emptyResult(result.RunID, result.StartedAt)
			failed.Status = StatusFailed
			failed.Err = apperrors.NewAppError(apperrors.ErrTypeInternal, fmt.Sprintf("pipeline panic: %v", r), nil)
			failed.ErrorKind = apperrors.ErrTypeInternal
			failed.FailedStage = result.FailedStage
			result = failed
		}
		result.Duration = time.Since(started)
		p.telemetry.finishRun(ctx, span, result)
		p.logOutcome(ctx, logger, result)
	}()

	stage, err := p.execute(ctx, &result)
	if err != nil {
		failed := emptyResult(result.RunID, result.StartedAt)
		failed.Status = StatusFailed
		failed.Err = err
		failed.ErrorKind = apperrors.Kind(err)
		if failed.ErrorKind == "" {
			failed.ErrorKind = apperrors.ErrTypeInternal
		}
		failed.FailedStage = stage
		result = failed
	}
	return result
}

// execute runs the stages in order and fills result. It returns the stage that failed.
func (p *Pipeline) execute(ctx context.Context, result *Result) (Stage, error) {
	var payload []byte
	if err := p.stage(ctx, result, StageRead, func(context.Context) error {
		var err error
		payload, err = p.readPayload()
		return err
	}); err != nil {
		return StageRead, err
	}

	var key *security.SymmetricKey
	if err := p.stage(ctx, result, StageKey, func(context.Context) error {
		var err error
		key, err = security.LoadKey(p.keyPath)
		return err
	}); err != nil {
		return StageKey, err
	}
	defer key.Wipe()

	var buf *security.SecureBuffer
	if err := p.stage(ctx, result, StageDecrypt, func(context.Context) error {
		var err error
		buf, err = security.Decrypt(payload, key)
		return err
	}); err != nil {
		return StageDecrypt, err
	}
	defer buf.Wipe()
	key.Wipe()

	if p.observeBuffer != nil {
		p.observeBuffer(buf)
	}
	p.telemetry.recordPlaintext(ctx, buf.Len())

	var format domain.Format
	if err := p.stage(ctx, result, StageDetect, func(context.Context) error {
		format = dataprocessing.Detect(buf.Bytes())
		return nil
	}); err != nil {
		return StageDetect, err
	}

	var rows domain.AppointmentSet
	if err := p.stage(ctx, result, StageNormalize, func(ctx context.Context) error {
		var err error
		rows, result.Stats, err = p.normalizer.Normalize(ctx, buf.Bytes(), format)
		return err
	}); err != nil {
		return StageNormalize, err
	}
	// Rows hold copies; the plaintext is no longer needed.
	buf.Wipe()
	p.telemetry.recordRows(ctx, result.Stats.Kept, result.Stats.Dropped())

	var summary domain.InsightSummary
	if err := p.stage(ctx, result, StageSummarize, func(context.Context) error {
		summary = dataprocessing.Summarize(rows, p.clock())
		return nil
	}); err != nil {
		return StageSummarize, err
	}

	if len(rows) == 0 {
		result.Status = StatusEmpty
		result.Summary = summary
		return "", nil
	}

	var series domain.TimeSeries
	if err := p.stage(ctx, result, StageSeries, func(context.Context) error {
		var err error
		series, err = dataprocessing.BuildSeries(rows)
		return err
	}); err != nil {
		return StageSeries, err
	}

	result.Status = StatusSucceeded
	result.Summary = summary
	result.Series = series
	result.Appointments = rows.SortedByDate()
	result.Charts = dataprocessing.BuildCharts(summary, series)
	return "", nil
}

// stage checks for cancellation, then runs fn inside a span
func (p *Pipeline) stage(ctx context.Context, result *Result, name Stage, fn func(context.Context) error) error {
	result.FailedStage = name
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before %s: %w", name, err)
	}

	stageCtx, span := p.telemetry.startStage(ctx, name)
	start := time.Now()
	err := fn(stageCtx)
	p.telemetry.endStage(stageCtx, span, name, time.Since(start), err)
	if err == nil {
		result.FailedStage = ""
	}
	return err
}

func (p *Pipeline) readPayload() ([]byte, error) {
	file, err := os.Open(p.agendaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewAppError(apperrors.ErrTypeNotFound, "agenda file not found", err)
		}
		return nil, apperrors.NewStorageError("failed to open agenda file", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, apperrors.NewStorageError("failed to stat agenda file", err)
	}
	if info.IsDir() {
		return nil, apperrors.NewAppValidationError("agenda path is a directory")
	}
	if info.Size() > p.maxFileSize {
		return nil, apperrors.NewAppValidationError(
			fmt.Sprintf("agenda file is %d bytes, limit is %d", info.Size(), p.maxFileSize))
	}

	payload, err := io.ReadAll(io.LimitReader(file, p.maxFileSize+1))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read agenda file", err)
	}
	return payload, nil
}

func (p *Pipeline) logOutcome(ctx context.Context, logger *slog.Logger, result Result) {
	attrs := []any{
		slog.String("status", string(result.Status)),
		slog.Int("total", result.Summary.Total),
		slog.Int("upcoming", result.Summary.Upcoming),
		slog.Int("historical", result.Summary.Historical),
		slog.Int("dropped", result.Stats.Dropped()),
		slog.Int64("duration_ms", result.Duration.Milliseconds()),
	}
	if result.Failed() {
		attrs = append(attrs,
			slog.String("error_kind", string(result.ErrorKind)),
			slog.String("stage", string(result.FailedStage)),
			slog.String("error", result.Err.Error()))
		logger.WarnContext(ctx, "Agenda run failed", attrs...)
		return
	}
	logger.InfoContext(ctx, "Agenda run completed", attrs...)
}
