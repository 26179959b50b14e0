// Package observability provides logging and formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
	now func() time.Time
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, now: time.Now}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintDocument outputs a summary of a generated document.
func (p *Printer) PrintDocument(doc *types.GeneratedDocument) {
	if doc == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:  %s\n", doc.EmployerName))
	sb.WriteString(fmt.Sprintf("Role:     %s\n", doc.RoleTitle))
	sb.WriteString(fmt.Sprintf("Title:    %s\n", doc.DeveloperTitle))
	sb.WriteString("\n")

	if len(doc.SkillGroups) > 0 {
		sb.WriteString("Skills:\n")
		count := min(len(doc.SkillGroups), maxItemsToShow)
		for i := 0; i < count; i++ {
			group := doc.SkillGroups[i]
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", group.GroupName, strings.Join(group.Keywords, ", ")))
		}
		if len(doc.SkillGroups) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(doc.SkillGroups)-maxItemsToShow))
		}
		sb.WriteString("\n")
	}

	blocks := doc.ExperienceBlocks()
	sb.WriteString(fmt.Sprintf("Bullets:  %d / %d / %d", len(blocks[0]), len(blocks[1]), len(blocks[2])))

	p.printBox("GENERATED DOCUMENT", sb.String())
}

// PrintArchive outputs the output directory listing as a table.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintArchive(entries []archive.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(p.out, "No exported documents.")
		return
	}

	now := p.now()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Employer,
			e.BaseName,
			strings.Join(e.Kinds, ", "),
			humanize.Bytes(uint64(e.Size)),
			humanize.RelTime(e.ModTime, now, "ago", "from now"),
		})
	}

	fmt.Fprintln(p.out, renderTable(
		[]string{"Employer", "Name", "Artifacts", "Size", "Modified"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignLeft},
	))
}

// PrintHistory outputs stored request records as a table.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintHistory(records []db.RequestRecord) {
	if len(records) == 0 {
		fmt.Fprintln(p.out, "No recorded requests.")
		return
	}

	now := p.now()
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		status := r.State
		if r.ErrorMessage != "" {
			status += ": " + truncate(r.ErrorMessage, 40)
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.Employer,
			r.RoleTitle,
			status,
			(time.Duration(r.ElapsedMS) * time.Millisecond).String(),
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
		})
	}

	fmt.Fprintln(p.out, renderTable(
		[]string{"ID", "Employer", "Role", "State", "Elapsed", "Created"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignLeft},
	))
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	columns := len(headers)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
