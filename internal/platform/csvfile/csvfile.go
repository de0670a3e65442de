package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Write replaces the file at path with a header row followed by records. The
// parent directory is created when missing.
func Write(path string, header []string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("%s: write header: %w", path, err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("%s: write records: %w", path, err)
	}
	return f.Close()
}

// Read returns the header and the remaining records of a delimited file.
func Read(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}
