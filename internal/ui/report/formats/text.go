// # internal/ui/report/formats/text.go
package formats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type textStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	typ     lipgloss.Style
	empty   lipgloss.Style
	errKind lipgloss.Style
	warn    lipgloss.Style
	hint    lipgloss.Style
	status  lipgloss.Style
}

func newTextStyles(r *lipgloss.Renderer) textStyles {
	return textStyles{
		title:   r.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true),
		section: r.NewStyle().Bold(true),
		typ:     r.NewStyle().Foreground(lipgloss.Color("#10B981")),
		empty:   r.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true),
		errKind: r.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true),
		hint:    r.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true),
		status:  r.NewStyle().Foreground(lipgloss.Color("#64748B")),
	}
}

// GenerateText writes r as a human-readable summary. Colours are only emitted
// when w is a terminal.
func GenerateText(w io.Writer, r *Report) error {
	st := newTextStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	title := "rtinfer"
	if r.RunID != "" {
		title += " run " + r.RunID
	}
	b.WriteString(st.title.Render(title))
	b.WriteByte('\n')
	summary := fmt.Sprintf("%s, %s, %s, %s",
		plural(r.Files, "file"), plural(r.Methods, "method"),
		plural(len(r.Queries), "query"), plural(len(r.Diagnostics), "diagnostic"))
	if r.Duration > 0 {
		summary += " in " + r.Duration.Round(time.Millisecond).String()
	}
	b.WriteString(st.status.Render(summary))
	b.WriteByte('\n')

	if len(r.Queries) > 0 {
		writeSection(&b, st, "Queries")
		calls := make([]string, len(r.Queries))
		width := 0
		for i, q := range r.Queries {
			calls[i] = fmt.Sprintf("%s(%s)", q.Target, strings.Join(q.Args, ", "))
			width = max(width, len(calls[i]))
		}
		for i, q := range r.Queries {
			typ := st.typ.Render(q.Type)
			if q.Type == "Empty" {
				typ = st.empty.Render(q.Type)
			}
			fmt.Fprintf(&b, "  %-*s  %s\n", width, calls[i], typ)
		}
	}

	if len(r.Diagnostics) > 0 {
		writeSection(&b, st, "Diagnostics")
		for _, d := range r.Diagnostics {
			kind := st.errKind.Render(d.Kind)
			if d.Kind == "OverloadContractViolation" {
				kind = st.warn.Render(d.Kind)
			}
			fmt.Fprintf(&b, "  %s:%d: %s: %s\n", d.File, d.Line, kind, d.Message)
			if d.Secondary != "" {
				fmt.Fprintf(&b, "    %s\n", st.hint.Render(d.Secondary))
			}
		}
	}

	writeFields(&b, st, "Globals", r.Globals)
	writeFields(&b, st, "Fields", r.Fields)

	if len(r.RecursiveGroups) > 0 {
		writeSection(&b, st, "Recursive groups")
		for _, g := range r.RecursiveGroups {
			fmt.Fprintf(&b, "  %s\n", strings.Join(g, " -> "))
		}
	}

	if len(r.LoadErrors) > 0 {
		writeSection(&b, st, "Load errors")
		for _, e := range r.LoadErrors {
			fmt.Fprintf(&b, "  %s\n", st.errKind.Render(e))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeSection(b *strings.Builder, st textStyles, name string) {
	b.WriteByte('\n')
	b.WriteString(st.section.Render(name))
	b.WriteByte('\n')
}

func writeFields(b *strings.Builder, st textStyles, name string, fields []Field) {
	if len(fields) == 0 {
		return
	}
	writeSection(b, st, name)
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Name))
	}
	for _, f := range fields {
		fmt.Fprintf(b, "  %-*s  %s\n", width, f.Name, st.typ.Render(f.Type))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	if strings.HasSuffix(word, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(word, "y"))
	}
	return fmt.Sprintf("%d %ss", n, word)
}
