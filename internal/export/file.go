package export

import (
	"io"
	"os"
	"path/filepath"
)

// writeFile writes through a temp file in the same directory and renames it
// into place, so a failed export never leaves a truncated workbook.
func writeFile(path string, fn func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cartellino-*.xlsx")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := fn(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
