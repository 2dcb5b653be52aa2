package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Formatter prints diagnostics in a compiler-style format:
//
//	warning[EXC_HANDLER_UNREACHABLE]: exception handler ... dropped
//	  --> Foo.bar()@0x1c
//	  = note: ...
type Formatter struct {
	w io.Writer

	errorColor   *color.Color
	warningColor *color.Color
	infoColor    *color.Color
	accentColor  *color.Color
}

// NewFormatter creates a formatter writing to w. Colors follow the terminal
// detection of fatih/color; use SetColor to force them on or off.
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{
		w:            w,
		errorColor:   color.New(color.FgRed, color.Bold),
		warningColor: color.New(color.FgYellow, color.Bold),
		infoColor:    color.New(color.FgCyan),
		accentColor:  color.New(color.FgBlue, color.Bold),
	}
}

// SetColor forces colored output on or off.
func (f *Formatter) SetColor(enabled bool) {
	for _, c := range []*color.Color{f.errorColor, f.warningColor, f.infoColor, f.accentColor} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Format prints one diagnostic.
func (f *Formatter) Format(d Diagnostic) {
	f.printHeader(d)
	if d.Location.IsValid() {
		fmt.Fprintf(f.w, "  %s %s\n", f.accentColor.Sprint("-->"), d.Location)
	}
	f.printHelp(d)
}

// FormatAll prints the diagnostics in order, separated by blank lines.
func (f *Formatter) FormatAll(ds []Diagnostic) {
	for i, d := range ds {
		if i > 0 {
			fmt.Fprintln(f.w)
		}
		f.Format(d)
	}
}

// printHeader prints the header line (error[CODE]: message).
func (f *Formatter) printHeader(d Diagnostic) {
	severity := d.Severity
	if severity == "" {
		severity = SeverityError
	}
	label := f.severityColor(severity).Sprint(string(severity))
	if d.Code != "" {
		label += f.severityColor(severity).Sprintf("[%s]", d.Code)
	}
	fmt.Fprintf(f.w, "%s: %s\n", label, d.Message)
}

func (f *Formatter) printHelp(d Diagnostic) {
	if d.Cause != nil {
		fmt.Fprintf(f.w, "  %s caused by: %v\n", f.accentColor.Sprint("="), d.Cause)
	}
	for _, note := range d.Notes {
		fmt.Fprintf(f.w, "  %s note: %s\n", f.accentColor.Sprint("="), note)
	}
	if d.Help != "" {
		fmt.Fprintf(f.w, "%s: %s\n", f.infoColor.Sprint("help"), d.Help)
	}
}

func (f *Formatter) severityColor(s Severity) *color.Color {
	switch s {
	case SeverityError:
		return f.errorColor
	case SeverityWarning:
		return f.warningColor
	default:
		return f.infoColor
	}
}

// Comments renders the diagnostics of at least the given severity as the
// single-line comments a code generator emits at the top of a method body.
// Colors are never applied.
func Comments(ds []Diagnostic, minSeverity Severity) []string {
	var lines []string
	for _, d := range ds {
		if !d.Severity.AtLeast(minSeverity) {
			continue
		}
		var b strings.Builder
		b.WriteString("/* ")
		b.WriteString(strings.ToUpper(string(d.Severity)))
		b.WriteString(": ")
		b.WriteString(d.Message)
		if d.Cause != nil {
			b.WriteString(": ")
			b.WriteString(d.Cause.Error())
		}
		b.WriteString(" */")
		lines = append(lines, strings.ReplaceAll(b.String(), "\n", " "))
	}
	return lines
}
