package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize caps a single extracted file to guard against decompression
// bombs in hand-crafted archives.
const maxEntrySize = 10 << 30 // 10 GiB

// Restore extracts a backup archive into targetDir. Archives written by
// Backup hold flat base-name entries, so anything else (absolute paths,
// nested paths, traversal attempts) is rejected rather than extracted, and
// non-regular entries are skipped. Existing files are only overwritten when
// force is set. An archive with no database file is refused outright.
func Restore(_ context.Context, archivePath, targetDir string, force bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	tr := tar.NewReader(gr)
	foundDB := false

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}

		name, err := entryName(hdr.Name)
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if strings.HasSuffix(name, ".db") {
			foundDB = true
		}

		dest := filepath.Join(targetDir, name)
		if !force {
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("file already exists (use --force to overwrite): %s", dest)
			}
		}

		if err := writeEntry(tr, dest, hdr); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
	}

	if !foundDB {
		return fmt.Errorf("invalid backup: archive does not contain a .db file")
	}

	return nil
}

// entryName validates that an archive entry is a single flat file name, the
// only shape Backup produces.
func entryName(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path traversal detected: absolute path %q", name)
	}
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." || cleaned != filepath.Base(cleaned) {
		return "", fmt.Errorf("path traversal detected: %q is not a flat entry", name)
	}
	return cleaned, nil
}

// writeEntry writes one regular file entry to disk with the archived mode.
func writeEntry(tr *tar.Reader, dest string, hdr *tar.Header) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777)) //nolint:gosec // G115: mode bits masked to permission range
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, io.LimitReader(tr, maxEntrySize))
	return err
}
