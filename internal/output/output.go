// Package output renders command results one record per line.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"db_journal_migrator/internal/migration"
)

// Printer writes states, journal entries and migrations to w. Color codes
// are only emitted when enabled.
type Printer struct {
	w      io.Writer
	colors map[string]*color.Color
}

const indent = "  "

func NewPrinter(w io.Writer, colored bool) *Printer {
	p := &Printer{
		w:      w,
		colors: map[string]*color.Color{
			string(migration.StatusPending):   color.New(color.FgYellow),
			string(migration.StatusApplied):   color.New(color.FgHiGreen),
			string(migration.StatusReverted):  color.New(color.FgCyan),
			string(migration.StatusMissing):   color.New(color.FgHiWhite, color.BgHiRed),
			string(migration.OperationApply):  color.New(color.FgHiGreen),
			string(migration.OperationRevert): color.New(color.FgCyan),
			"id":                              color.New(color.Bold),
		},
	}
	for _, c := range p.colors {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) paint(key, s string) string {
	if c, ok := p.colors[key]; ok {
		return c.Sprint(s)
	}
	return s
}

// States prints "<state> <id> <name>" per migration.
func (p *Printer) States(states []migration.State) error {
	for _, st := range states {
		if _, err := fmt.Fprintf(p.w, "%s %s %s\n", p.paint(string(st.Status), string(st.Status)), p.paint("id", st.MigrationID), st.MigrationName); err != nil {
			return err
		}
	}
	return nil
}

// Journal prints "<timestamp> <operation> <id> <name>" per entry, with the
// timestamp in RFC 3339 UTC.
func (p *Printer) Journal(entries []migration.JournalEntry) error {
	for _, e := range entries {
		ts := e.Timestamp.UTC().Format(time.RFC3339)
		if _, err := fmt.Fprintf(p.w, "%s %s %s %s\n", ts, p.paint(string(e.Operation), string(e.Operation)), p.paint("id", e.MigrationID), e.MigrationName); err != nil {
			return err
		}
	}
	return nil
}

// Migrations prints "<id> <name> <layout>" per migration. With verbose set
// the source files follow, indented, as rendered by path.
func (p *Printer) Migrations(migrations []migration.Migration, verbose bool, path func(string) string) error {
	if path == nil {
		path = func(s string) string { return s }
	}
	for _, m := range migrations {
		if _, err := fmt.Fprintf(p.w, "%s %s %s\n", p.paint("id", m.ID), m.Name, m.Layout); err != nil {
			return err
		}
		if !verbose {
			continue
		}
		files := []string{m.UpPath}
		if m.DownPath != m.UpPath {
			files = append(files, m.DownPath)
		}
		for _, f := range files {
			if _, err := fmt.Fprintf(p.w, "%s%s\n", indent, path(f)); err != nil {
				return err
			}
		}
	}
	return nil
}
