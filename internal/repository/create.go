package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IDLayout formats the timestamp used as the id of new migrations.
const IDLayout = "20060102150405"

const combinedTemplate = `-- %s: up

-------------------------------------------------------------------------------

-- %s: down
`

const splitTemplate = "-- %s: %s\n"

// NewID returns a migration id derived from t.
func NewID(t time.Time) string {
	return t.UTC().Format(IDLayout)
}

// Create writes the files for a new migration and returns their paths.
// Existing files are never overwritten.
func (r *Repository) Create(id, name string, split bool) ([]string, error) {
	if r.dir == "" {
		return nil, errors.New("repository is read-only")
	}
	name = safeName(name)
	if id == "" || name == "" {
		return nil, errors.New("id and name are required")
	}
	if strings.Contains(id, ".") {
		return nil, fmt.Errorf("id %q must not contain dots", id)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, err
	}

	label := id + "." + name
	files := map[string]string{
		label + ".sql": fmt.Sprintf(combinedTemplate, label, label),
	}
	order := []string{label + ".sql"}
	if split {
		files = map[string]string{
			label + ".up.sql":   fmt.Sprintf(splitTemplate, label, "up"),
			label + ".down.sql": fmt.Sprintf(splitTemplate, label, "down"),
		}
		order = []string{label + ".up.sql", label + ".down.sql"}
	}

	var created []string
	for _, file := range order {
		target := filepath.Join(r.dir, file)
		if err := writeNew(target, files[file]); err != nil {
			for _, done := range created {
				_ = os.Remove(done)
			}
			return nil, err
		}
		created = append(created, target)
	}
	return created, nil
}

func writeNew(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists", path)
		}
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// safeName turns a label into a file name segment: spaces and dots become
// underscores and path separators are dropped.
func safeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer(" ", "_", ".", "_", "/", "", `\`, "").Replace(name)
	return name
}
