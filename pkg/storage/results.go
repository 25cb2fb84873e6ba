package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	errs "repostreach/pkg/errors"
	"repostreach/pkg/models"
)

// ResultHeader is the column layout of the result file
var ResultHeader = []string{"post_id", "reposter_ids", "reposter_count", "exposure"}

// Manager owns the result CSV. The file is created with a header when a run
// starts, collected rows are appended once the collection phase finishes and
// the whole file is rewritten after aggregation.
type Manager struct {
	path string
}

// NewManager creates the parent directory of path if needed
func NewManager(path string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{path: path}, nil
}

// Path returns the result file location
func (m *Manager) Path() string { return m.path }

// Exists reports whether the result file is present
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Init writes a header-only result file, replacing any previous one
func (m *Manager) Init() error {
	return m.Rewrite(nil)
}

// Append adds rows to the end of the result file. The file must exist.
func (m *Manager) Append(table models.PostTable) error {
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open result file: %w", err)
	}

	if err := writeRows(f, table); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync result file: %w", err)
	}
	return f.Close()
}

// Rewrite replaces the result file with header and table through a
// temporary file and rename
func (m *Manager) Rewrite(table models.PostTable) error {
	tempFile := m.path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	w := csv.NewWriter(out)
	if err := w.Write(ResultHeader); err != nil {
		out.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to write result header: %w", err)
	}
	w.Flush()

	err = writeRows(out, table)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write result file: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, m.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func writeRows(w io.Writer, table models.PostTable) error {
	cw := csv.NewWriter(w)
	for _, r := range table {
		ids := r.ReposterIDs
		if ids == nil {
			ids = []string{}
		}
		encoded, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("failed to encode reposters of %s: %w", r.PostID, err)
		}
		if err := cw.Write([]string{
			r.PostID,
			string(encoded),
			strconv.Itoa(r.ReposterCount),
			r.ExposureString(),
		}); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.PostID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadResults parses a result file written by Manager
func ReadResults(path string) (models.PostTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}
	if len(rows) == 0 {
		return nil, errs.New(errs.ErrorTypeParsing, "result file has no header")
	}

	table := make(models.PostTable, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(ResultHeader) {
			return nil, errs.New(errs.ErrorTypeParsing, "result row %d has %d columns", i+2, len(row))
		}

		var rec models.PostRecord
		rec.PostID = row[0]
		if err := json.Unmarshal([]byte(row[1]), &rec.ReposterIDs); err != nil {
			return nil, fmt.Errorf("result row %d reposter_ids: %w", i+2, err)
		}
		if rec.ReposterCount, err = strconv.Atoi(row[2]); err != nil {
			return nil, fmt.Errorf("result row %d reposter_count: %w", i+2, err)
		}
		if row[3] != models.ExposurePlaceholder {
			v, err := strconv.ParseInt(row[3], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("result row %d exposure: %w", i+2, err)
			}
			rec.Exposure = &v
		}
		table = append(table, rec)
	}
	return table, nil
}
