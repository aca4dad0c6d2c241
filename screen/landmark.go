package screen

import (
	"math"
	"time"
)

// Landmark counts delivered by a MediaPipe-style face mesh.
const (
	NumFaceLandmarks    = 468 // base mesh
	NumRefinedLandmarks = 478 // base mesh + 10 iris points
)

// Point3D is a landmark in normalized image coordinates: X and Y in [0,1]
// relative to frame width and height, Z relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkFrame is one capture tick from the landmark detector.
// Frames are ephemeral: consumed once by Session.Step and never persisted.
type LandmarkFrame struct {
	Timestamp time.Time
	Points    []Point3D // indices fixed by the upstream detector
	Valid     bool      // false when no face was detected
	Dropped   bool      // tagged as dropped by an upstream queue; counted, never analyzed
}

// Observation is everything the engine reads on one loop iteration: the
// landmark frame plus, during pursuit, the renderer's current target position.
type Observation struct {
	Frame     LandmarkFrame
	Target    float64 // target position along the trajectory axis, normalized [-1,1]
	HasTarget bool
}

// EyeLayout names the landmark indices the extractor reads. EAR index order is
// [outer corner, top, top-mid, inner corner, bottom-mid, bottom].
type EyeLayout struct {
	LeftEAR      []int `yaml:"left_ear"`
	RightEAR     []int `yaml:"right_ear"`
	LeftContour  []int `yaml:"left_contour"`
	RightContour []int `yaml:"right_contour"`
	LeftIris     int   `yaml:"left_iris"`  // negative disables
	RightIris    int   `yaml:"right_iris"` // negative disables
}

// MediaPipeEyeLayout returns the eye indices of the MediaPipe face mesh
// (refined landmarks supply iris centres at 468 and 473).
func MediaPipeEyeLayout() EyeLayout {
	return EyeLayout{
		LeftEAR:  []int{33, 159, 158, 133, 153, 144},
		RightEAR: []int{362, 386, 385, 263, 373, 380},
		LeftContour: []int{
			33, 7, 163, 144, 145, 153, 154, 155,
			133, 173, 157, 158, 159, 160, 161, 246,
		},
		RightContour: []int{
			362, 382, 381, 380, 374, 373, 390, 249,
			263, 466, 388, 387, 386, 385, 384, 398,
		},
		LeftIris:  468,
		RightIris: 473,
	}
}

// maxIndex returns the largest index the layout reads, excluding iris points.
func (l EyeLayout) maxIndex() int {
	m := -1
	for _, set := range [][]int{l.LeftEAR, l.RightEAR, l.LeftContour, l.RightContour} {
		for _, idx := range set {
			if idx > m {
				m = idx
			}
		}
	}
	return m
}

func distance2D(a, b Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
