package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	errs "repostreach/pkg/errors"
)

// ReadPostIDs returns the values of column in file order. Blank cells are
// skipped; duplicates are kept.
func ReadPostIDs(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	return readPostIDs(f, column)
}

func readPostIDs(r io.Reader, column string) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errs.New(errs.ErrorTypeInput, "input file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errs.New(errs.ErrorTypeInput, "input file has no %q column", column)
	}

	var ids []string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input line %d: %w", line, err)
		}
		if col >= len(record) {
			continue
		}
		if id := strings.TrimSpace(record[col]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
