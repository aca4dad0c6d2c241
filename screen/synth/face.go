package synth

import (
	"time"

	"github.com/lightscreen/lightscreen/screen"
)

// Synthetic face geometry in pixels.
const (
	eyeWidthPx   = 30.0
	eyeSpacingPx = 30.0 // each eye's centre sits this far from the midpoint
)

// FaceFrame builds a refined-mesh landmark frame whose extracted EAR equals
// ear and whose extracted gaze offset equals gaze (before clamping). Only the
// indices named by cfg.Eyes are placed; every other point sits at the frame
// centre.
func FaceFrame(ts time.Time, ear float64, gaze screen.GazeOffset, cfg screen.FeatureConfig) screen.LandmarkFrame {
	points := make([]screen.Point3D, screen.NumRefinedLandmarks)
	for i := range points {
		points[i] = screen.Point3D{X: 0.5, Y: 0.5}
	}

	cx := 0.5 + gaze.X*0.5
	cy := 0.5 + gaze.Y*0.5
	dx := eyeSpacingPx / cfg.FrameWidth

	placeEye(points, cfg.Eyes.LeftContour, cfg.Eyes.LeftEAR, cfg.Eyes.LeftIris, cx-dx, cy, ear, cfg)
	placeEye(points, cfg.Eyes.RightContour, cfg.Eyes.RightEAR, cfg.Eyes.RightIris, cx+dx, cy, ear, cfg)

	return screen.LandmarkFrame{Timestamp: ts, Points: points, Valid: true}
}

// placeEye puts the six EAR points symmetrically around (x, y) so their
// pixel-space aspect ratio is ear, and collapses the remaining contour points
// and the iris onto the centre so both centroid paths agree.
func placeEye(points []screen.Point3D, contour, earIdx []int, iris int, x, y, ear float64, cfg screen.FeatureConfig) {
	centre := screen.Point3D{X: x, Y: y}
	for _, j := range contour {
		points[j] = centre
	}
	if iris >= 0 && iris < len(points) {
		points[iris] = centre
	}

	hw := eyeWidthPx / 2 / cfg.FrameWidth
	sw := eyeWidthPx / 6 / cfg.FrameWidth
	hh := ear * eyeWidthPx / 2 / cfg.FrameHeight

	// [outer corner, top, top-mid, inner corner, bottom-mid, bottom]
	offsets := [6]screen.Point3D{
		{X: -hw}, {X: -sw, Y: -hh}, {X: sw, Y: -hh},
		{X: hw}, {X: sw, Y: hh}, {X: -sw, Y: hh},
	}
	for i, j := range earIdx {
		points[j] = screen.Point3D{X: x + offsets[i].X, Y: y + offsets[i].Y}
	}
}
