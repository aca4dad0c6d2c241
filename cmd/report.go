package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/lightscreen/lightscreen/screen"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

// printReport writes the human-readable session report.
func printReport(w io.Writer, res *screening) {
	o := res.Outcome
	fmt.Fprintln(w, "=== Screening Session ===")
	fmt.Fprintf(w, "Session              : %s\n", o.SessionID)
	fmt.Fprintf(w, "State                : %s\n", o.State)
	if o.AbortReason != "" {
		fmt.Fprintf(w, "Abort Reason         : %s\n", o.AbortReason)
	}
	fmt.Fprintf(w, "EAR Threshold        : %.3f\n", o.Threshold)

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tDURATION\tFRAMES\tVALID\tBLINKS\tCLOSED\tOFF-CENTRE\t")
	for _, r := range o.Records {
		name := string(r.Kind)
		if r.Truncated {
			name += "*"
		}
		fmt.Fprintf(tw, "%s\t%.2fs\t%d\t%d\t%d\t%d\t%d\t\n", name, r.Duration().Seconds(),
			r.FrameCount, r.ValidFrameCount, r.BlinkCount(), r.ClosedFrameCount, r.OffCenterFrameCount)
	}
	tw.Flush()

	if m := o.Metrics; m != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Session Metrics ===")
		fmt.Fprintf(w, "Baseline Blink Rate  : %s /min\n", m.BaselineBlinkRate.Format("%.1f"))
		fmt.Fprintf(w, "Flicker Blink Rate   : %s /min\n", m.FlickerBlinkRate.Format("%.1f"))
		fmt.Fprintf(w, "Blink Rate Delta     : %s /min\n", m.BlinkRateDelta.Format("%+.1f"))
		fmt.Fprintf(w, "Eye Closed Fraction  : %s\n", m.EyeClosedFraction.Format("%.3f"))
		fmt.Fprintf(w, "Gaze Off-Centre      : %s\n", m.GazeOffCenterFraction.Format("%.3f"))
		fmt.Fprintf(w, "Pursuit RMS Error    : %s\n", m.PursuitTrackingError.Format("%.3f"))
		fmt.Fprintf(w, "Pursuit Lag          : %s s\n", m.PursuitLag.Format("%.3f"))
		if p := m.Pursuit; p != nil && p.Available {
			fmt.Fprintf(w, "Pursuit Within Window: %.1f%%\n", p.WithinWindow*100)
		}
		fmt.Fprintf(w, "Dropped Frames       : %d\n", m.DroppedFrames)
	}

	if ra := res.Assessment; ra != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Risk Assessment (advisory, not a diagnosis) ===")
		fmt.Fprintf(w, "Score                : %d / %d\n", ra.Score, ra.MaxScore)
		fmt.Fprintf(w, "Category             : %s\n", ra.Category)
		fmt.Fprintf(w, "Escalate             : %t\n", ra.Escalate)
		names := make([]string, 0, len(ra.Factors))
		for name, pts := range ra.Factors {
			if pts > 0 {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-26s +%d\n", name, ra.Factors[name])
		}
		for _, f := range ra.Findings {
			fmt.Fprintf(w, "  - %s\n", f)
		}
		fmt.Fprintln(w, ra.Recommendation)
	}

	caveats := append([]string(nil), o.Quality.Caveats...)
	if res.Assessment != nil {
		caveats = append(caveats, res.Assessment.Caveats...)
	}
	if len(caveats) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Caveats:")
		for _, c := range caveats {
			fmt.Fprintf(w, "  ! %s\n", c)
		}
	}

	if t := res.Trace; t != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Trace Summary ===")
		fmt.Fprintf(w, "Transitions          : %d\n", t.Transitions)
		fmt.Fprintf(w, "Blinks (counted/suppressed/incomplete): %d/%d/%d\n",
			t.CountedBlinks, t.SuppressedBlinks, t.IncompleteBlinks)
		fmt.Fprintf(w, "Mean Blink Duration  : %v\n", t.MeanBlinkDuration)
	}
}

// printResultRow is the one-line form used by history.
func printResultRow(tw *tabwriter.Writer, id string, at string, state screen.PhaseKind, ra *screen.RiskAssessment) {
	score, category, escalate := "-", "-", "-"
	if ra != nil {
		score = fmt.Sprintf("%d", ra.Score)
		category = string(ra.Category)
		escalate = fmt.Sprintf("%t", ra.Escalate)
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", id, at, state, score, category, escalate)
}
