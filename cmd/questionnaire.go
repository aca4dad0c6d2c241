package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lightscreen/lightscreen/screen"
)

// promptQuestionnaire asks the symptom questions and the self-rating. Symptoms
// whose flag answered reports as set keep their preset value and are not
// asked; a nil answered asks all four. Unparseable answers are asked again;
// an out-of-range rating is rejected and asked again rather than clamped.
func promptQuestionnaire(in io.Reader, out io.Writer, preset screen.Symptoms, answered func(flag string) bool) (screen.Questionnaire, error) {
	r := bufio.NewReader(in)
	q := screen.Questionnaire{Symptoms: preset}
	var err error

	questions := []struct {
		flag string
		text string
		dst  *bool
	}{
		{"headache", "Do you have a headache?", &q.Symptoms.Headache},
		{"nausea", "Do you feel nauseous?", &q.Symptoms.Nausea},
		{"dizziness", "Do you feel dizzy?", &q.Symptoms.Dizziness},
		{"light-sensitivity", "Are you sensitive to light right now?", &q.Symptoms.LightSensitivity},
	}
	for _, question := range questions {
		if answered != nil && answered(question.flag) {
			continue
		}
		if *question.dst, err = askYesNo(r, out, question.text); err != nil {
			return q, err
		}
	}

	for {
		fmt.Fprintf(out, "How uncomfortable was the light test, from %d (not at all) to %d (unbearable)? ",
			screen.MinSubjectiveRating, screen.MaxSubjectiveRating)
		line, err := readLine(r)
		if err != nil {
			return q, err
		}
		n, convErr := strconv.Atoi(line)
		if convErr != nil {
			fmt.Fprintln(out, "Please enter a whole number.")
			continue
		}
		q.SubjectiveRating = n
		if err := q.Validate(); err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		return q, nil
	}
}

func askYesNo(r *bufio.Reader, out io.Writer, question string) (bool, error) {
	for {
		fmt.Fprintf(out, "%s [y/n] ", question)
		line, err := readLine(r)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(out, "Please answer y or n.")
	}
}

// readLine returns the next trimmed line. A final line without a newline is
// returned normally; running out of input before any answer is an error.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", fmt.Errorf("questionnaire: %w", io.ErrUnexpectedEOF)
		}
		return "", fmt.Errorf("questionnaire: %w", err)
	}
	return strings.TrimSpace(line), nil
}
