package export

import (
	"archive/zip"
	"fmt"
	"io"
)

// ZipEntry names one file inside the bundle. Exactly one of Data or Reader
// must be set.
type ZipEntry struct {
	Name   string
	Data   []byte
	Reader io.Reader
}

// ZipExporter bundles a CSV plus media files into a single archive.
type ZipExporter struct{}

// NewZipExporter builds a zip exporter.
func NewZipExporter() *ZipExporter {
	return &ZipExporter{}
}

// Write streams the entries into w as a zip archive.
func (e *ZipExporter) Write(w io.Writer, entries []ZipEntry) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if entry.Name == "" {
			return fmt.Errorf("zip entry requires a name")
		}
		fw, err := zw.Create(entry.Name)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", entry.Name, err)
		}
		switch {
		case entry.Reader != nil:
			if _, err := io.Copy(fw, entry.Reader); err != nil {
				return fmt.Errorf("write zip entry %s: %w", entry.Name, err)
			}
		default:
			if _, err := fw.Write(entry.Data); err != nil {
				return fmt.Errorf("write zip entry %s: %w", entry.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip archive: %w", err)
	}
	return nil
}
