package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lightscreen/lightscreen/screen"
	"github.com/lightscreen/lightscreen/screen/clock"
	"github.com/lightscreen/lightscreen/screen/store"
	"github.com/lightscreen/lightscreen/screen/trace"
)

// screeningFlags are shared by every command that runs a session.
type screeningFlags struct {
	headache         bool
	nausea           bool
	dizziness        bool
	lightSensitivity bool
	rating           int // 0 prompts on stdin
	dbPath           string
	jsonOutput       bool
	traceLevel       string
	sessionID        string
}

func (f *screeningFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.headache, "headache", false, "Subject reports a headache")
	cmd.Flags().BoolVar(&f.nausea, "nausea", false, "Subject reports nausea")
	cmd.Flags().BoolVar(&f.dizziness, "dizziness", false, "Subject reports dizziness")
	cmd.Flags().BoolVar(&f.lightSensitivity, "light-sensitivity", false, "Subject reports light sensitivity")
	cmd.Flags().IntVar(&f.rating, "rating", 0, "Subjective discomfort 1-10 (0: ask interactively)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite file to store the result in (empty: do not store)")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&f.traceLevel, "trace-level", "none", "Session trace verbosity (none, events)")
	cmd.Flags().StringVar(&f.sessionID, "session-id", "", "Session ID (default: random UUID)")
}

// questionnaire returns the flag answers, prompting on cmd's input for
// anything left unset. Without --rating, only the symptom flags that were not
// given on the command line are asked.
func (f *screeningFlags) questionnaire(cmd *cobra.Command) (screen.Questionnaire, error) {
	symptoms := screen.Symptoms{
		Headache:         f.headache,
		Nausea:           f.nausea,
		Dizziness:        f.dizziness,
		LightSensitivity: f.lightSensitivity,
	}
	if f.rating != 0 {
		q := screen.Questionnaire{Symptoms: symptoms, SubjectiveRating: f.rating}
		return q, q.Validate()
	}
	return promptQuestionnaire(cmd.InOrStdin(), cmd.ErrOrStderr(), symptoms, cmd.Flags().Changed)
}

// screening is everything one session run produced.
type screening struct {
	Outcome    *screen.Outcome        `json:"outcome"`
	Assessment *screen.RiskAssessment `json:"assessment,omitempty"`
	Trace      *trace.TraceSummary    `json:"trace,omitempty"`
}

// runScreening drives one session from src, scores it when complete, prints
// the report, and stores the result when --db is set.
func runScreening(ctx context.Context, cmd *cobra.Command, cfg screen.Config, clk clock.Clock,
	src screen.FrameSource, f *screeningFlags) (*screening, error) {
	if !trace.IsValidTraceLevel(f.traceLevel) {
		return nil, fmt.Errorf("unknown trace level %q", f.traceLevel)
	}
	var opts []screen.Option
	var st *trace.SessionTrace
	if trace.TraceLevel(f.traceLevel) == trace.TraceLevelEvents {
		st = trace.NewSessionTrace(trace.TraceConfig{Level: trace.TraceLevel(f.traceLevel)})
		opts = append(opts, screen.WithTrace(st))
	}
	if f.sessionID != "" {
		opts = append(opts, screen.WithSessionID(f.sessionID))
	}

	sess, err := screen.NewSession(cfg, clk, opts...)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Starting session %s (%v total)", sess.ID(), cfg.Phases.Total())

	outcome, err := sess.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	res := &screening{Outcome: outcome}
	if st != nil {
		res.Trace = trace.Summarize(st)
	}

	if outcome.State == screen.PhaseComplete {
		q, err := f.questionnaire(cmd)
		if err != nil {
			return nil, err
		}
		ra, err := outcome.Assess(screen.NewScorer(cfg.Scoring), q)
		if err != nil {
			return nil, err
		}
		res.Assessment = &ra
	} else {
		logrus.Warnf("Session %s aborted (%s); no risk assessment produced", outcome.SessionID, outcome.AbortReason)
	}

	if f.jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return nil, err
		}
	} else {
		printReport(cmd.OutOrStdout(), res)
	}

	if f.dbPath != "" {
		db, err := store.Open(f.dbPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		// The run context may already be cancelled; aborted sessions are stored too.
		if err := db.Save(context.Background(), store.NewResult(outcome, res.Assessment, time.Now())); err != nil {
			return nil, err
		}
		logrus.Infof("Stored result %s in %s", outcome.SessionID, f.dbPath)
	}
	return res, nil
}
