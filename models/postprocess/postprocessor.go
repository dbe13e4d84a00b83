package postprocess

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Recorder receives per-run observations, typically for metrics.
type Recorder interface {
	ObserveRun(stats Stats, elapsed time.Duration)
	ObserveError(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(Stats, time.Duration) {}
func (nopRecorder) ObserveError(string)             {}

// NewPostprocessorArgs configures a Postprocessor.
type NewPostprocessorArgs struct {
	// NMS is the suppression configuration used by every run.
	NMS NMSConfig
	// Encoding is the default box layout; requests may override it.
	Encoding Encoding
	// ScoreThreshold is the default confidence cut-off.
	ScoreThreshold float32
	// MaxNum is the default detection cap; zero or negative means unlimited.
	MaxNum int
	// Workers bounds per-class concurrency on the rotated path.
	Workers int
	// Logger defaults to the global zap logger.
	Logger *zap.Logger
	// Recorder defaults to a no-op.
	Recorder Recorder
}

// Postprocessor applies one suppression configuration to many images.
// It holds no per-run state and is safe for concurrent use.
type Postprocessor struct {
	nms            NMSConfig
	encoding       Encoding
	scoreThreshold float32
	maxNum         int
	workers        int
	log            *zap.Logger
	recorder       Recorder
}

// NewPostprocessor creates a Postprocessor.
//
// Arguments:
//   - args: The configuration. NMS must come from NewNMSConfig or ParseNMSConfig.
//
// Returns:
//   - *Postprocessor: The ready postprocessor.
//   - error: ErrUnsupportedAlgorithm if args.NMS is the zero value.
func NewPostprocessor(args NewPostprocessorArgs) (*Postprocessor, error) {
	if args.NMS.suppressor == nil {
		return nil, errors.Wrap(ErrUnsupportedAlgorithm, "nms config was not constructed")
	}
	p := &Postprocessor{
		nms:            args.NMS,
		encoding:       args.Encoding,
		scoreThreshold: args.ScoreThreshold,
		maxNum:         args.MaxNum,
		workers:        max(args.Workers, 1),
		log:            args.Logger,
		recorder:       args.Recorder,
	}
	if p.log == nil {
		p.log = zap.L()
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	p.log = p.log.Named("postprocess")
	return p, nil
}

// Request is the input of one Postprocessor run. Nil overrides fall back to
// the Postprocessor defaults.
type Request struct {
	Boxes          Matrix
	Scores         Matrix
	ScoreFactors   []float32
	ScoreThreshold *float32
	MaxNum         *int
	Encoding       *Encoding
}

// Run filters and suppresses one image's candidates.
func (p *Postprocessor) Run(ctx context.Context, req Request) (Detections, error) {
	if err := ctx.Err(); err != nil {
		return Detections{}, err
	}

	thr := p.scoreThreshold
	if req.ScoreThreshold != nil {
		thr = *req.ScoreThreshold
	}
	maxNum := p.maxNum
	if req.MaxNum != nil {
		maxNum = *req.MaxNum
	}
	enc := p.encoding
	if req.Encoding != nil {
		enc = *req.Encoding
	}

	start := time.Now()
	dets, stats, err := multiclassNMS(req.Boxes, req.Scores, thr, p.nms, maxNum, req.ScoreFactors,
		WithEncoding(enc), WithWorkers(p.workers))
	if err != nil {
		kind := ErrorKind(err)
		p.recorder.ObserveError(kind)
		p.log.Warn("multiclass nms rejected input",
			zap.String("kind", kind),
			zap.Int("box_rows", req.Boxes.Rows()),
			zap.Int("box_cols", req.Boxes.Cols()),
			zap.Int("score_cols", req.Scores.Cols()),
			zap.Error(err))
		return Detections{}, err
	}

	elapsed := time.Since(start)
	p.recorder.ObserveRun(stats, elapsed)
	p.log.Debug("multiclass nms",
		zap.Stringer("path", stats.Kind),
		zap.Stringer("nms", p.nms),
		zap.Int("candidates", stats.Candidates),
		zap.Int("passed", stats.Passed),
		zap.Int("detections", stats.Detections),
		zap.Duration("elapsed", elapsed))
	return dets, nil
}

// Config returns the suppression configuration.
func (p *Postprocessor) Config() NMSConfig {
	return p.nms
}
