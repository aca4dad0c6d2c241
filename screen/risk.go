package screen

import "fmt"

// Subjective self-rating bounds, inclusive.
const (
	MinSubjectiveRating = 1
	MaxSubjectiveRating = 10
)

// Category partitions the risk score range.
type Category string

const (
	CategoryLow      Category = "LOW"
	CategoryModerate Category = "MODERATE"
	CategoryElevated Category = "ELEVATED"
)

// Contributing factor names, used as keys of RiskAssessment.Factors.
const (
	FactorBlinkRateDelta   = "blink_rate_delta"
	FactorEyeClosed        = "eye_closed_fraction"
	FactorGazeOffCenter    = "gaze_off_center_fraction"
	FactorPursuitError     = "pursuit_tracking_error"
	FactorPursuitLag       = "pursuit_lag"
	FactorHeadache         = "symptom_headache"
	FactorNausea           = "symptom_nausea"
	FactorDizziness        = "symptom_dizziness"
	FactorLightSensitivity = "symptom_light_sensitivity"
	FactorSubjective       = "subjective_rating"
)

// Symptoms are the yes/no questionnaire answers.
type Symptoms struct {
	Headache         bool `json:"headache"`
	Nausea           bool `json:"nausea"`
	Dizziness        bool `json:"dizziness"`
	LightSensitivity bool `json:"light_sensitivity"`
}

// Questionnaire is the self-reported half of the scorer input.
type Questionnaire struct {
	Symptoms         Symptoms `json:"symptoms"`
	SubjectiveRating int      `json:"subjective_rating"`
}

// Validate rejects out-of-range ratings. Ratings are never clamped.
func (q Questionnaire) Validate() error {
	if q.SubjectiveRating < MinSubjectiveRating || q.SubjectiveRating > MaxSubjectiveRating {
		return fmt.Errorf("%w: subjective rating must be %d-%d, got %d",
			ErrInvalidQuestionnaire, MinSubjectiveRating, MaxSubjectiveRating, q.SubjectiveRating)
	}
	return nil
}

// RiskAssessment is the terminal, advisory scoring artifact. It is not a diagnosis.
type RiskAssessment struct {
	Score          int            `json:"risk_score"`
	MaxScore       int            `json:"max_score"`
	Category       Category       `json:"category"`
	Escalate       bool           `json:"escalate"`
	Factors        map[string]int `json:"contributing_factors"`
	Findings       []string       `json:"findings,omitempty"`
	Caveats        []string       `json:"caveats,omitempty"`
	Recommendation string         `json:"recommendation"`
}

// Scorer maps metrics and questionnaire answers to a RiskAssessment.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a scorer over the given bands. cfg is assumed validated
// (Config.Validate covers it).
func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score is a pure function of m and q. Every factor is non-negative and
// monotonic in its input; unavailable metrics contribute zero and are listed
// as caveats.
func (s *Scorer) Score(m SessionMetrics, q Questionnaire) (RiskAssessment, error) {
	if err := q.Validate(); err != nil {
		return RiskAssessment{}, err
	}

	ra := RiskAssessment{
		MaxScore: s.cfg.MaxScore,
		Factors:  make(map[string]int),
	}

	metric := func(name string, v Metric, bands []Band, finding string, scale float64) {
		if !v.Available {
			ra.Factors[name] = 0
			ra.Caveats = append(ra.Caveats, name+" unavailable; scored as 0")
			return
		}
		pts := bandPoints(v.Value, bands)
		ra.Factors[name] = pts
		if pts > 0 {
			ra.Findings = append(ra.Findings, fmt.Sprintf(finding, v.Value*scale))
		}
	}
	metric(FactorBlinkRateDelta, m.BlinkRateDelta, s.cfg.BlinkRateDelta,
		"blink rate rose by %.1f/min under flicker", 1)
	metric(FactorEyeClosed, m.EyeClosedFraction, s.cfg.EyeClosedFraction,
		"eyes closed for %.0f%% of the light phases", 100)
	metric(FactorGazeOffCenter, m.GazeOffCenterFraction, s.cfg.GazeOffCenter,
		"gaze was off-centre for %.0f%% of the light phases", 100)
	metric(FactorPursuitError, m.PursuitTrackingError, s.cfg.PursuitError,
		"smooth pursuit tracking error %.2f", 1)
	metric(FactorPursuitLag, m.PursuitLag, s.cfg.PursuitLagSeconds,
		"eyes trailed the moving target by %.2fs", 1)

	symptom := func(name string, affirmed bool, label string) {
		if !affirmed {
			ra.Factors[name] = 0
			return
		}
		ra.Factors[name] = s.cfg.SymptomPoints
		ra.Findings = append(ra.Findings, "reported "+label)
	}
	symptom(FactorHeadache, q.Symptoms.Headache, "headache")
	symptom(FactorNausea, q.Symptoms.Nausea, "nausea")
	symptom(FactorDizziness, q.Symptoms.Dizziness, "dizziness")
	symptom(FactorLightSensitivity, q.Symptoms.LightSensitivity, "light sensitivity")

	subj := ratingPoints(q.SubjectiveRating, s.cfg.Subjective)
	ra.Factors[FactorSubjective] = subj
	if subj > 0 {
		ra.Findings = append(ra.Findings, fmt.Sprintf("self-rated discomfort %d/%d", q.SubjectiveRating, MaxSubjectiveRating))
	}

	for _, pts := range ra.Factors {
		ra.Score += pts
	}
	if ra.Score > s.cfg.MaxScore {
		ra.Score = s.cfg.MaxScore
	}

	switch {
	case ra.Score >= s.cfg.ElevatedAt:
		ra.Category = CategoryElevated
	case ra.Score >= s.cfg.ModerateAt:
		ra.Category = CategoryModerate
	default:
		ra.Category = CategoryLow
	}
	ra.Escalate = ra.Score >= s.cfg.EscalateAt
	ra.Recommendation = recommendation(ra.Category)
	return ra, nil
}

// bandPoints returns the points of the highest band v strictly exceeds.
func bandPoints(v float64, bands []Band) int {
	pts := 0
	for _, b := range bands {
		if v > b.Above {
			pts = b.Points
		}
	}
	return pts
}

func ratingPoints(r int, bands []RatingBand) int {
	for _, b := range bands {
		if r >= b.Min && r <= b.Max {
			return b.Points
		}
	}
	return 0
}

func recommendation(c Category) string {
	switch c {
	case CategoryElevated:
		return "Several indicators of light sensitivity were observed. Consider an evaluation by a healthcare provider."
	case CategoryModerate:
		return "Some indicators were observed. Monitor symptoms and rescreen if they persist or worsen."
	default:
		return "Few indicators were observed. Rescreen if symptoms develop."
	}
}
