// Package repository lists migration files and reads their SQL bodies.
//
// A migration is either a combined file named <id>.<name>.sql holding an up
// section and a down section separated by a line of three or more dashes, or
// a split pair named <id>.<name>.up.sql and <id>.<name>.down.sql.
package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"db_journal_migrator/internal/migration"
)

var delimiter = regexp.MustCompile(`(?m)^-{3,}[ \t]*\r?$`)

// Repository reads migrations from a file system.
type Repository struct {
	fsys   fs.FS
	dir    string
	logger *slog.Logger
}

// New returns a repository over the directory dir.
func New(dir string, logger *slog.Logger) *Repository {
	r := NewFS(os.DirFS(dir), logger)
	r.dir = dir
	return r
}

// NewFS returns a read-only repository over fsys, for example an embed.FS.
func NewFS(fsys fs.FS, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{fsys: fsys, logger: logger}
}

// Dir is the directory the repository was opened on, empty for NewFS.
func (r *Repository) Dir() string {
	return r.dir
}

type fileKind int

const (
	fileCombined fileKind = iota
	fileUp
	fileDown
)

type group struct {
	id, name string
	combined string
	up       string
	down     string
}

// List returns every migration sorted by id. Malformed file groups fail the
// whole listing.
func (r *Repository) List() ([]migration.Migration, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	groups := map[string]*group{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		id, name, kind, ok := parseFileName(entry.Name())
		if !ok {
			r.logger.Debug("skipping file with unexpected name", "file", entry.Name())
			continue
		}
		key := id + "." + name
		g, exists := groups[key]
		if !exists {
			g = &group{id: id, name: name}
			groups[key] = g
		}
		switch kind {
		case fileCombined:
			g.combined = entry.Name()
		case fileUp:
			g.up = entry.Name()
		case fileDown:
			g.down = entry.Name()
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seen := map[string]string{}
	out := make([]migration.Migration, 0, len(groups))
	for _, key := range keys {
		m, err := r.resolve(groups[key])
		if err != nil {
			return nil, err
		}
		if other, dup := seen[m.ID]; dup {
			return nil, &migration.Error{
				Kind:          migration.KindDuplicateID,
				MigrationID:   m.ID,
				MigrationName: m.Name,
				Err:           fmt.Errorf("id also used by %s", other),
			}
		}
		seen[m.ID] = m.ID + "." + m.Name
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repository) resolve(g *group) (migration.Migration, error) {
	m := migration.Migration{ID: g.id, Name: g.name}
	hasSplit := g.up != "" || g.down != ""

	switch {
	case g.combined != "" && hasSplit:
		return m, &migration.Error{
			Kind:          migration.KindSplitFileConflict,
			MigrationID:   g.id,
			MigrationName: g.name,
			Path:          r.display(g.combined),
			Err:           errors.New("both a combined file and split files exist"),
		}
	case g.combined != "":
		body, err := fs.ReadFile(r.fsys, g.combined)
		if err != nil {
			return m, fmt.Errorf("read migration %s: %w", g.combined, err)
		}
		if _, _, err := splitSections(m, r.display(g.combined), string(body)); err != nil {
			return m, err
		}
		m.Layout = migration.LayoutCombined
		m.UpPath = g.combined
		m.DownPath = g.combined
		return m, nil
	case g.up == "" || g.down == "":
		present, missing := g.up, "down"
		if g.up == "" {
			present, missing = g.down, "up"
		}
		return m, &migration.Error{
			Kind:          migration.KindSplitFileMissing,
			MigrationID:   g.id,
			MigrationName: g.name,
			Path:          r.display(present),
			Err:           fmt.Errorf("%s file not found", missing),
		}
	default:
		m.Layout = migration.LayoutSplit
		m.UpPath = g.up
		m.DownPath = g.down
		return m, nil
	}
}

// ReadUp returns the SQL that applies m.
func (r *Repository) ReadUp(m migration.Migration) (string, error) {
	return r.read(m, true)
}

// ReadDown returns the SQL that reverts m.
func (r *Repository) ReadDown(m migration.Migration) (string, error) {
	return r.read(m, false)
}

func (r *Repository) read(m migration.Migration, up bool) (string, error) {
	name := m.DownPath
	if up {
		name = m.UpPath
	}
	body, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", name, err)
	}
	if m.Layout != migration.LayoutCombined {
		return string(body), nil
	}
	upSQL, downSQL, err := splitSections(m, r.display(name), string(body))
	if err != nil {
		return "", err
	}
	if up {
		return upSQL, nil
	}
	return downSQL, nil
}

// Path returns the display path of a migration source file.
func (r *Repository) Path(name string) string {
	return r.display(name)
}

func (r *Repository) display(name string) string {
	if r.dir == "" {
		return name
	}
	return filepath.Join(r.dir, name)
}

func splitSections(m migration.Migration, file, body string) (string, string, error) {
	locs := delimiter.FindAllStringIndex(body, -1)
	switch {
	case len(locs) == 0:
		return "", "", &migration.Error{
			Kind:          migration.KindSQLSectionMissing,
			MigrationID:   m.ID,
			MigrationName: m.Name,
			Path:          file,
			Err:           errors.New("no up/down delimiter line"),
		}
	case len(locs) > 1:
		return "", "", &migration.Error{
			Kind:          migration.KindSQLSectionConflict,
			MigrationID:   m.ID,
			MigrationName: m.Name,
			Path:          file,
			Err:           fmt.Errorf("%d delimiter lines, want 1", len(locs)),
		}
	}
	up := strings.TrimSpace(body[:locs[0][0]])
	down := strings.TrimSpace(body[locs[0][1]:])
	if up == "" || down == "" {
		which := "down"
		if up == "" {
			which = "up"
		}
		return "", "", &migration.Error{
			Kind:          migration.KindSQLSectionMissing,
			MigrationID:   m.ID,
			MigrationName: m.Name,
			Path:          file,
			Err:           fmt.Errorf("%s section is empty", which),
		}
	}
	return up, down, nil
}

// parseFileName splits <id>.<name>[.up|.down].sql.
func parseFileName(file string) (id, name string, kind fileKind, ok bool) {
	base := strings.TrimSuffix(file, ".sql")
	kind = fileCombined
	switch {
	case strings.HasSuffix(base, ".up"):
		base = strings.TrimSuffix(base, ".up")
		kind = fileUp
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
		kind = fileDown
	}
	id, name, found := strings.Cut(base, ".")
	if !found || id == "" || name == "" {
		return "", "", kind, false
	}
	return id, name, kind, true
}
