// Package backup creates and restores tar.gz archives of the RouteFleet
// database and configuration file.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Backup writes a tar.gz archive containing the database file and, when
// configPath is non-empty, the configuration file. Archive entries use the
// base file names so a restore lands flat in the target directory.
func Backup(_ context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	if err := addFile(tw, dbPath); err != nil {
		return fmt.Errorf("archiving database: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := addFile(tw, configPath); err != nil {
				return fmt.Errorf("archiving config: %w", err)
			}
		}
	}

	return nil
}

// addFile appends a single file to the archive under its base name.
func addFile(tw *tar.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}
