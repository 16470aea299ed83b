// bundle.go - tar.gz bundle creation and unpacking
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	manifestEntry = "manifest.yaml"
	contentEntry  = "content"
)

// writeBundle writes a tar.gz bundle containing the manifest and, when
// present, the original content. It writes to a temporary file first and
// renames into place so a crash never leaves a half-written bundle at the
// final path.
func writeBundle(path string, manifestData, content []byte) (err error) {
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		return fmt.Errorf("failed to create archive directory: %w", mkErr)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bundle-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary bundle: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	gw := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gw)

	now := time.Now()
	entries := []struct {
		name string
		data []byte
	}{
		{manifestEntry, manifestData},
	}
	if len(content) > 0 {
		entries = append(entries, struct {
			name string
			data []byte
		}{contentEntry, content})
	}

	for _, entry := range entries {
		hdr := &tar.Header{
			Name:    entry.name,
			Mode:    0o644,
			Size:    int64(len(entry.data)),
			ModTime: now,
		}
		if err = tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", entry.name, err)
		}
		if _, err = tw.Write(entry.data); err != nil {
			return fmt.Errorf("failed to write tar entry %s: %w", entry.name, err)
		}
	}

	if err = tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err = gw.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary bundle: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}
	return nil
}

// readBundle opens a bundle and returns the manifest bytes and content
// bytes (nil when the bundle carries no content).
func readBundle(path string) (manifestData, content []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, readErr := tr.Next()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, nil, fmt.Errorf("failed to read tar stream: %w", readErr)
		}

		var buf bytes.Buffer
		if _, copyErr := io.Copy(&buf, tr); copyErr != nil {
			return nil, nil, fmt.Errorf("failed to read tar entry %s: %w", hdr.Name, copyErr)
		}
		switch hdr.Name {
		case manifestEntry:
			manifestData = buf.Bytes()
		case contentEntry:
			content = buf.Bytes()
		}
	}

	if manifestData == nil {
		return nil, nil, fmt.Errorf("bundle %s has no manifest", path)
	}
	return manifestData, content, nil
}
