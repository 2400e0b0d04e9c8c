package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"postdraft/internal/transparency"
)

// styles renders status output for one writer. Color is only emitted when
// the writer is a terminal.
type styles struct {
	status  lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
	header  lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		status:  r.NewStyle().Foreground(lipgloss.Color("12")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		header:  r.NewStyle().Bold(true).Underline(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s styles) printStatus(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, s.status.Render(fmt.Sprintf(format, args...)))
}

func (s styles) printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, s.success.Render(fmt.Sprintf(format, args...)))
}

// printError prints one Error line followed by any remediation hints.
func (s styles) printError(w io.Writer, err error) {
	ce := transparency.ClassifyError(err)
	fmt.Fprintln(w, s.err.Render("Error:")+" "+err.Error())
	for _, hint := range ce.Remediation {
		fmt.Fprintln(w, s.dim.Render("  hint: "+hint))
	}
}
