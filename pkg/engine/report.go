package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/updates"
)

const bannerRule = "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"

// Diagnostic is the one-line form of a pass failure: "geobuild: <op>: <reason>".
func Diagnostic(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return "geobuild: " + msg
}

// WriteFailure prints the halt banner around the diagnostic line.
func WriteFailure(w io.Writer, err error) {
	heading := "error"
	if kind, ok := build.KindOf(err); ok {
		heading = string(kind)
	}
	fmt.Fprintln(w, bannerRule)
	fmt.Fprintf(w, "!! Build halted due to %s:\n", heading)
	fmt.Fprintf(w, "!! %s\n", Diagnostic(err))
	fmt.Fprintln(w, bannerRule)
}

// WriteSuccess prints the script timing, lint findings and update advisories. Up to
// date advisories are only shown when verbose is set.
func WriteSuccess(w io.Writer, o *Outcome, verbose bool) {
	if o.Script != nil && o.Script.Found {
		fmt.Fprintf(w, "Geobuild script completed in %.3fs!\n", o.Script.Duration.Seconds())
	}
	for _, f := range o.Findings {
		fmt.Fprintf(w, "%s: %s\n", f.Severity, f)
	}
	WriteAdvisories(w, o.Advisories, verbose)
}

// WriteAdvisories prints update advisories in declaration order.
func WriteAdvisories(w io.Writer, advisories []updates.Advisory, verbose bool) {
	for _, a := range advisories {
		if a.Kind == updates.KindUpToDate && !verbose {
			continue
		}
		fmt.Fprintln(w, a.String())
		if note := a.IgnoredNote(); note != "" {
			fmt.Fprintf(w, "  %s\n", note)
		}
	}
}

// ExitCode maps a pass result to the process exit status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
