package screen

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// GazeOffset is the displacement of the eye centroid from the frame centre,
// normalized by half-width and half-height. Each axis is in [-1,1]; 0 is centred.
type GazeOffset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Magnitude returns the Euclidean length of the offset.
func (g GazeOffset) Magnitude() float64 {
	return math.Hypot(g.X, g.Y)
}

// Axis returns the component named by axis ("x" or "y").
func (g GazeOffset) Axis(axis string) float64 {
	if axis == "x" {
		return g.X
	}
	return g.Y
}

// FeatureSample holds the scalar features of one frame. Immutable once produced.
type FeatureSample struct {
	Timestamp time.Time
	LeftEAR   float64
	RightEAR  float64
	EAR       float64 // mean of LeftEAR and RightEAR
	Gaze      GazeOffset
	Valid     bool
}

// Extractor converts landmark frames to feature samples. It has no state
// beyond its configuration.
type Extractor struct {
	cfg      FeatureConfig
	minCount int // points needed for EAR and contour centroids
}

// NewExtractor creates an Extractor for the given configuration.
func NewExtractor(cfg FeatureConfig) *Extractor {
	return &Extractor{cfg: cfg, minCount: cfg.Eyes.maxIndex() + 1}
}

// Extract computes features for one frame. Frames with no face, frames tagged
// as dropped, and frames too short for the configured layout yield an invalid sample.
func (e *Extractor) Extract(f LandmarkFrame) FeatureSample {
	s := FeatureSample{Timestamp: f.Timestamp}
	if !f.Valid || f.Dropped {
		return s
	}
	if len(f.Points) < e.minCount {
		logrus.Debugf("landmark frame has %d points, layout needs %d; treating as invalid", len(f.Points), e.minCount)
		return s
	}

	s.LeftEAR = e.eyeAspectRatio(f.Points, e.cfg.Eyes.LeftEAR)
	s.RightEAR = e.eyeAspectRatio(f.Points, e.cfg.Eyes.RightEAR)
	s.EAR = (s.LeftEAR + s.RightEAR) / 2.0

	cx, cy := e.eyeCentroid(f.Points)
	s.Gaze = GazeOffset{
		X: clampUnit((cx - 0.5) / 0.5),
		Y: clampUnit((cy - 0.5) / 0.5),
	}
	s.Valid = true
	return s
}

// eyeAspectRatio returns (|p1-p5| + |p2-p4|) / (2|p0-p3|) in pixel space.
// A degenerate eye width yields 0, which reads as closed.
func (e *Extractor) eyeAspectRatio(points []Point3D, idx []int) float64 {
	var p [6]Point3D
	for i, j := range idx {
		p[i] = e.toPixels(points[j])
	}
	h := distance2D(p[0], p[3])
	if h == 0 {
		return 0
	}
	v1 := distance2D(p[1], p[5])
	v2 := distance2D(p[2], p[4])
	return (v1 + v2) / (2.0 * h)
}

// eyeCentroid returns the normalized centre between both eyes, using iris
// landmarks when enabled and supplied, otherwise the eye contours.
func (e *Extractor) eyeCentroid(points []Point3D) (float64, float64) {
	eyes := e.cfg.Eyes
	if e.cfg.UseIris && eyes.LeftIris >= 0 && eyes.RightIris >= 0 &&
		eyes.LeftIris < len(points) && eyes.RightIris < len(points) {
		l, r := points[eyes.LeftIris], points[eyes.RightIris]
		return (l.X + r.X) / 2, (l.Y + r.Y) / 2
	}
	lx, ly := centroid(points, eyes.LeftContour)
	rx, ry := centroid(points, eyes.RightContour)
	return (lx + rx) / 2, (ly + ry) / 2
}

func (e *Extractor) toPixels(p Point3D) Point3D {
	return Point3D{X: p.X * e.cfg.FrameWidth, Y: p.Y * e.cfg.FrameHeight, Z: p.Z}
}

func centroid(points []Point3D, idx []int) (float64, float64) {
	var sx, sy float64
	for _, j := range idx {
		sx += points[j].X
		sy += points[j].Y
	}
	n := float64(len(idx))
	return sx / n, sy / n
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
