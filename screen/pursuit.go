package screen

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PursuitSample pairs the renderer's target position with the observed gaze
// position on the trajectory axis. Only recorded during the pursuit phase.
// Frame is the sample's index among all frames the phase processed, so gaps
// left by dropped frames stay visible to the lag search.
type PursuitSample struct {
	Frame     int       `json:"frame"`
	Timestamp time.Time `json:"t"`
	Target    float64   `json:"target"`
	Observed  float64   `json:"observed"`
}

// PursuitResult summarizes tracking over the pursuit phase. When Available is
// false the error fields are zero and Reason explains why.
type PursuitResult struct {
	Available     bool    `json:"available"`
	Reason        string  `json:"reason,omitempty"`
	Samples       int     `json:"samples"`
	ValidFraction float64 `json:"valid_fraction"`

	RMSError     float64 `json:"rms_error"`
	MeanAbsError float64 `json:"mean_abs_error"`
	ErrorStdDev  float64 `json:"error_std_dev"`
	WithinWindow float64 `json:"within_window"` // fraction of samples with |error| <= TrackingWindow

	LagAvailable bool          `json:"lag_available"`
	Lag          time.Duration `json:"lag"`        // positive: gaze trails the target
	LagFrames    int           `json:"lag_frames"` // shift that maximized correlation
	Correlation  float64       `json:"correlation"`
}

// PursuitAnalyzer accumulates samples during the pursuit phase.
type PursuitAnalyzer struct {
	cfg     PursuitConfig
	samples []PursuitSample
}

// NewPursuitAnalyzer creates an empty analyzer.
func NewPursuitAnalyzer(cfg PursuitConfig) *PursuitAnalyzer {
	return &PursuitAnalyzer{cfg: cfg}
}

// Add appends one sample.
func (a *PursuitAnalyzer) Add(s PursuitSample) {
	a.samples = append(a.samples, s)
}

// Samples returns a copy of the accumulated samples.
func (a *PursuitAnalyzer) Samples() []PursuitSample {
	out := make([]PursuitSample, len(a.samples))
	copy(out, a.samples)
	return out
}

// Analyze computes tracking statistics given the number of frames the pursuit
// phase processed (valid or not).
func (a *PursuitAnalyzer) Analyze(phaseFrames int) PursuitResult {
	return AnalyzePursuit(a.samples, phaseFrames, a.cfg)
}

// AnalyzePursuit is the pure form of PursuitAnalyzer.Analyze.
func AnalyzePursuit(samples []PursuitSample, phaseFrames int, cfg PursuitConfig) PursuitResult {
	res := PursuitResult{Samples: len(samples)}
	if phaseFrames > 0 {
		res.ValidFraction = float64(len(samples)) / float64(phaseFrames)
	}
	switch {
	case phaseFrames == 0:
		res.Reason = "no pursuit frames processed"
		return res
	case res.ValidFraction < cfg.MinValidFraction:
		res.Reason = "too few valid pursuit samples (face lost)"
		return res
	case len(samples) < cfg.MinSamples:
		res.Reason = "too few pursuit samples"
		return res
	}

	n := len(samples)
	errs := make([]float64, n)
	absErrs := make([]float64, n)
	within := 0
	for i, s := range samples {
		errs[i] = s.Observed - s.Target
		absErrs[i] = math.Abs(errs[i])
		if absErrs[i] <= cfg.TrackingWindow {
			within++
		}
	}

	res.Available = true
	res.RMSError = math.Sqrt(floats.Dot(errs, errs) / float64(n))
	res.MeanAbsError = stat.Mean(absErrs, nil)
	_, res.ErrorStdDev = stat.PopMeanStdDev(errs, nil)
	res.WithinWindow = float64(within) / float64(n)

	period := framePeriod(samples)
	if period <= 0 {
		return res
	}
	maxShift := int(math.Round(float64(cfg.MaxLag) / float64(period)))
	shift, corr, ok := bestLag(samples, maxShift)
	if !ok {
		return res
	}
	res.LagAvailable = true
	res.LagFrames = shift
	res.Lag = time.Duration(shift) * period
	res.Correlation = corr
	return res
}

// bestLag searches frame shifts in [-maxShift, maxShift] for the one
// maximizing the Pearson correlation between the target at frame f and the
// observed gaze at frame f+shift. Only frames present on both sides are
// paired. An optimum on the window edge is treated as out of range, as is a
// flat signal.
func bestLag(samples []PursuitSample, maxShift int) (int, float64, bool) {
	if maxShift < 1 {
		return 0, 0, false
	}
	byFrame := make(map[int]int, len(samples))
	for i, s := range samples {
		byFrame[s.Frame] = i
	}
	x := make([]float64, 0, len(samples))
	y := make([]float64, 0, len(samples))
	best, bestCorr := 0, math.Inf(-1)
	for shift := -maxShift; shift <= maxShift; shift++ {
		x, y = x[:0], y[:0]
		for _, s := range samples {
			j, ok := byFrame[s.Frame+shift]
			if !ok {
				continue
			}
			x = append(x, s.Target)
			y = append(y, samples[j].Observed)
		}
		if len(x) < 3 {
			continue
		}
		c := stat.Correlation(x, y, nil)
		if math.IsNaN(c) {
			continue
		}
		if c > bestCorr {
			best, bestCorr = shift, c
		}
	}
	if math.IsInf(bestCorr, -1) {
		return 0, 0, false
	}
	if best == maxShift || best == -maxShift {
		return best, bestCorr, false
	}
	return best, bestCorr, true
}

// framePeriod returns the median per-frame interval between consecutive
// samples, dividing each gap by the number of frames it spans.
func framePeriod(samples []PursuitSample) time.Duration {
	if len(samples) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		frames := samples[i].Frame - samples[i-1].Frame
		if frames <= 0 {
			continue
		}
		gaps = append(gaps, float64(samples[i].Timestamp.Sub(samples[i-1].Timestamp))/float64(frames))
	}
	if len(gaps) == 0 {
		return 0
	}
	sort.Float64s(gaps)
	return time.Duration(stat.Quantile(0.5, stat.Empirical, gaps, nil))
}
