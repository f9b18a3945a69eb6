// Package printer writes colored CLI output.
package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var (
	// Out receives regular output; Err receives formatted errors.
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	blue   = color.New(color.FgBlue)
	faint  = color.New(color.Faint)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Out, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Out, msg)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

// Status returns the request status colored by lifecycle stage.
func Status(s blackboard.RequestStatus) string {
	switch s {
	case blackboard.RequestStatusApproved, blackboard.RequestStatusCompleted:
		return green.Sprint(s)
	case blackboard.RequestStatusRunning:
		return cyan.Sprint(s)
	case blackboard.RequestStatusHalted:
		return yellow.Sprint(s)
	case blackboard.RequestStatusDeclined:
		return red.Sprint(s)
	case blackboard.RequestStatusPending:
		return blue.Sprint(s)
	default:
		return string(s)
	}
}

// Faint returns text in a dimmed style, for secondary details.
func Faint(text string) string {
	return faint.Sprint(text)
}

// Error prints a formatted error with title, explanation, and suggestions to Err
// and returns a simple error carrying the title for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with extra key/value context lines.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Err, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Err, "%s\n", explanation)
	}

	if len(context) > 0 {
		fmt.Fprintf(Err, "\n")
		for key, value := range context {
			fmt.Fprintf(Err, "  %s: %s\n", key, value)
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Err, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(Err, "  %d. %s\n", i+1, suggestion)
		}
	}

	return &ReportedError{Title: title}
}

// ReportedError is returned by Error and ErrorWithContext. The details were
// already printed, so callers should only set the exit code.
type ReportedError struct {
	Title string
}

func (e *ReportedError) Error() string {
	return e.Title
}

// IsReported returns true if err (or anything it wraps) was already printed.
func IsReported(err error) bool {
	var reported *ReportedError
	return errors.As(err, &reported)
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Fprintln(Out, a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}
