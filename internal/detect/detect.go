// Package detect locates the service watermark in sampled video frames by
// multi-scale template matching with optional mask and edge fusion. Frames
// are extracted by the external encoder binary; no in-process decoding.
package detect

import (
	"context"
	"image"
	"log/slog"
	"math"

	"sorapipe/internal/config"
	"sorapipe/internal/logging"
	"sorapipe/internal/services"
)

// BBox is a detection rectangle in original frame coordinates.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Sample records the best candidate of one frame × scale evaluation. Scale
// is the configured template scale variant, independent of any internal
// frame downscaling.
type Sample struct {
	Frame    int     `json:"frame"`
	Scale    float64 `json:"scale"`
	Raw      float64 `json:"raw"`
	Edge     float64 `json:"edge"`
	Z        float64 `json:"z"`
	Combined float64 `json:"combined"`
	BBox     BBox    `json:"bbox"`
}

// Report is the full detection outcome for one video.
type Report struct {
	Found     bool     `json:"found"`
	BBox      BBox     `json:"bbox"`
	Score     float64  `json:"score"`
	RawScore  float64  `json:"raw_score"`
	EdgeScore float64  `json:"edge_score"`
	ZScore    float64  `json:"z_score"`
	FrameW    int      `json:"frame_w"`
	FrameH    int      `json:"frame_h"`
	Scale     float64  `json:"scale"`
	Method    string   `json:"method"`
	Series    []Sample `json:"series"`
}

// FrameSource yields up to count frames sampled evenly across the video.
type FrameSource interface {
	Sample(ctx context.Context, videoPath string, count int) ([]image.Image, error)
}

// Option configures a detector.
type Option func(*Detector)

// WithFrameSource injects a custom frame source (primarily for tests).
func WithFrameSource(src FrameSource) Option {
	return func(d *Detector) {
		if src != nil {
			d.frames = src
		}
	}
}

// Detector runs watermark detection with one prepared asset set.
type Detector struct {
	cfg    config.Detect
	assets *Assets
	frames FrameSource
	logger *slog.Logger
}

// New constructs a detector. The encoder binary is used to extract frames.
func New(cfg config.Detect, assets *Assets, encoderBinary string, logger *slog.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Detector{
		cfg:    cfg,
		assets: assets,
		frames: newFFmpegFrameSource(encoderBinary),
		logger: logging.NewComponentLogger(logger, "detect"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect samples frames and returns the best watermark candidate. Found is
// false when no candidate reaches the configured threshold.
func (d *Detector) Detect(ctx context.Context, videoPath string) (Report, error) {
	count := d.cfg.Frames
	if count < 1 {
		count = 1
	}
	frames, err := d.frames.Sample(ctx, videoPath, count)
	if err != nil {
		return Report{}, services.Wrap(services.ErrExternalTool, "detect", "sample frames", videoPath, err)
	}
	if len(frames) == 0 {
		return Report{}, services.Wrap(services.ErrNotFound, "detect", "sample frames", "no frames decoded from "+videoPath, nil)
	}

	method := "ccoeff_normed"
	if d.assets.HasMask() {
		method = "ccorr_normed"
	}
	report := Report{Method: method, Score: math.Inf(-1)}

	for frameIdx, frameImg := range frames {
		if ctx.Err() != nil {
			return Report{}, ctx.Err()
		}
		original := PlaneFromImage(frameImg)
		if frameIdx == 0 {
			report.FrameW = original.W
			report.FrameH = original.H
		}

		working, downFactor := d.downscale(original)
		if d.cfg.BlurKernel >= 3 {
			working = working.GaussianBlur(oddKernel(d.cfg.BlurKernel))
		}
		var frameEdges *Plane
		if d.cfg.EdgeWeight > 0 {
			frameEdges = working.EdgeMap(d.cfg.CannyLow, d.cfg.CannyHigh)
		}

		for _, variant := range d.scales() {
			overall := downFactor * variant
			view, err := d.assets.ViewAt(overall, d.cfg.CannyLow, d.cfg.CannyHigh)
			if err != nil {
				continue
			}
			sample, ok := d.evaluate(working, frameEdges, view, original, frameIdx, variant)
			if !ok {
				continue
			}
			report.Series = append(report.Series, sample)
			if sample.Combined > report.Score {
				report.Score = sample.Combined
				report.RawScore = sample.Raw
				report.EdgeScore = sample.Edge
				report.ZScore = sample.Z
				report.Scale = sample.Scale
				report.BBox = sample.BBox
			}
		}
	}

	if math.IsInf(report.Score, -1) {
		report.Score = 0
		d.logger.Info("no usable template placement", logging.String("file", videoPath))
		return report, nil
	}
	report.Found = report.Score >= d.cfg.Threshold
	d.logger.Info("detection finished",
		logging.String("file", videoPath),
		logging.Bool("found", report.Found),
		logging.Float64("score", report.Score),
		logging.String("method", method))
	return report, nil
}

// evaluate scores one frame × template-view pair and maps the best window
// back to original coordinates. variant is the configured scale the view was
// derived from, recorded on the sample.
func (d *Detector) evaluate(working, frameEdges *Plane, view *View, original *Plane, frameIdx int, variant float64) (Sample, bool) {
	var stats MatchStats
	if view.Mask != nil {
		stats = MatchCCorrNormed(working, view.Template, view.Mask)
	} else {
		stats = MatchCCoeffNormed(working, view.Template)
	}
	if !stats.Valid {
		return Sample{}, false
	}

	raw := stats.Max
	z := (stats.Max - stats.Mean) / (stats.Std + epsilon)
	if z < 0 {
		z = 0
	}
	zComponent := math.Tanh(z / 3)

	edgeScore := 0.0
	if frameEdges != nil && view.Edges != nil {
		edgeStats := MatchCCoeffNormed(frameEdges, view.Edges)
		if edgeStats.Valid {
			edgeScore = edgeStats.Max
		}
	}

	combined := raw
	if d.cfg.EdgeWeight > 0 {
		combined = (1-d.cfg.EdgeWeight)*raw + d.cfg.EdgeWeight*math.Max(edgeScore, 0)
		combined = math.Max(combined, raw)
	}
	beforeBlend := combined
	if d.cfg.ScoreZWeight > 0 {
		combined = (1-d.cfg.ScoreZWeight)*combined + d.cfg.ScoreZWeight*zComponent
		combined = math.Max(combined, beforeBlend)
	}
	combined += d.cfg.ScoreBias
	combined = clampFloat(combined, d.cfg.ScoreFloor, 1)

	// Map the window back into original coordinates and clamp inside frame.
	factor := float64(working.W) / float64(original.W)
	bbox := BBox{
		X: int(math.Round(float64(stats.MaxX) / factor)),
		Y: int(math.Round(float64(stats.MaxY) / factor)),
		W: int(math.Round(float64(view.Template.W) / factor)),
		H: int(math.Round(float64(view.Template.H) / factor)),
	}
	bbox = clampBBox(bbox, original.W, original.H)

	return Sample{
		Frame:    frameIdx,
		Scale:    variant,
		Raw:      raw,
		Edge:     edgeScore,
		Z:        z,
		Combined: combined,
		BBox:     bbox,
	}, true
}

// downscale shrinks the frame per configuration: a value in (0,1) is a direct
// factor, a value > 1 caps the longest dimension. Returns the working plane
// and the applied factor.
func (d *Detector) downscale(frame *Plane) (*Plane, float64) {
	ds := d.cfg.Downscale
	factor := 1.0
	switch {
	case ds > 0 && ds < 1:
		factor = ds
	case ds >= 1:
		longest := frame.W
		if frame.H > longest {
			longest = frame.H
		}
		if float64(longest) > ds {
			factor = ds / float64(longest)
		}
	}
	if factor >= 1 {
		return frame, 1
	}
	w := int(math.Round(float64(frame.W) * factor))
	h := int(math.Round(float64(frame.H) * factor))
	if w < 2 || h < 2 {
		return frame, 1
	}
	return frame.Resize(w, h), factor
}

func (d *Detector) scales() []float64 {
	if len(d.cfg.Scales) == 0 {
		return []float64{1}
	}
	return d.cfg.Scales
}

func clampBBox(b BBox, w, h int) BBox {
	if b.X < 0 {
		b.X = 0
	}
	if b.Y < 0 {
		b.Y = 0
	}
	if b.W < 1 {
		b.W = 1
	}
	if b.H < 1 {
		b.H = 1
	}
	if b.X+b.W > w {
		b.X = w - b.W
		if b.X < 0 {
			b.X = 0
			b.W = w
		}
	}
	if b.Y+b.H > h {
		b.Y = h - b.H
		if b.Y < 0 {
			b.Y = 0
			b.H = h
		}
	}
	return b
}

func oddKernel(k int) int {
	if k%2 == 0 {
		return k + 1
	}
	return k
}
