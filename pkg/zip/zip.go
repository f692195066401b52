// Package zip bundles generated pose illustrations into one archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// Entry is one file placed in the archive.
type Entry struct {
	Name     string
	Modified time.Time
	Open     func() (io.ReadCloser, error)
}

// Write streams entries into w as a zip archive. Entries whose Open fails are
// skipped; the number of files written is returned. JPEG payloads are stored
// without recompression.
func Write(w io.Writer, entries []Entry) (int, error) {
	zw := zip.NewWriter(w)
	written := 0
	for _, e := range entries {
		rc, err := e.Open()
		if err != nil {
			continue
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Store,
			Modified: e.Modified,
		})
		if err != nil {
			_ = rc.Close()
			return written, fmt.Errorf("zip: create %s: %w", e.Name, err)
		}
		_, err = io.Copy(fw, rc)
		_ = rc.Close()
		if err != nil {
			return written, fmt.Errorf("zip: copy %s: %w", e.Name, err)
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("zip: close: %w", err)
	}
	return written, nil
}
