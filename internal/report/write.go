package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type WriteOptions struct {
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

func WriteCSV(w io.Writer, p Projection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(p.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(p.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile writes {dir}/{kind}.csv.
func WriteFile(dir string, p Projection, opt WriteOptions) (WriteResult, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, err
	}

	path := filepath.Join(dir, string(p.Kind)+".csv")
	if !opt.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return WriteResult{}, errors.New("file exists (use --overwrite): " + path)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return WriteResult{}, err
	}
	if err := WriteCSV(f, p); err != nil {
		_ = f.Close()
		return WriteResult{}, errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Written: []string{path}}, nil
}
