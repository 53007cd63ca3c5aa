// Package packager builds the code archive uploaded for function and site deployments.
package packager

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"
)

// ArchiveName is the file name deployments are uploaded with.
const ArchiveName = "code.tar.gz"

// Version control metadata is never deployed.
var defaultIgnore = []string{".git", ".git/**"}

// Packager ...
type Packager struct {
	logger log.Logger
}

// NewPackager ...
func NewPackager(logger log.Logger) *Packager {
	return &Packager{logger: logger}
}

// Package writes a gzip compressed tar archive of srcDir to archivePath.
// Entry names are relative to srcDir. Paths matching one of the ignore
// patterns (doublestar globs, e.g. "node_modules/**" or "**/*.log") are skipped.
func (p *Packager) Package(srcDir, archivePath string, ignore []string) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	patterns := append(append([]string{}, defaultIgnore...), ignore...)
	for _, pattern := range patterns {
		if _, err := doublestar.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid ignore pattern '%s': %w", pattern, err)
		}
	}

	fileToWrite, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if err := fileToWrite.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.logger.Warnf("Failed to close archive file: %s", err)
		}
	}()

	gzipWriter := gzip.NewWriter(fileToWrite)
	tw := tar.NewWriter(gzipWriter)

	entries := 0
	if err := filepath.Walk(srcDir, func(file string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(srcDir, file)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", file, err)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if ignored(patterns, rel) {
			p.logger.Debugf("Ignoring %s", rel)
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if err := writeEntry(tw, file, rel, fi); err != nil {
			return err
		}
		entries++
		return nil
	}); err != nil {
		return fmt.Errorf("iterate on files: %w", err)
	}

	// produce tar
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	// produce gzip
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	if err := fileToWrite.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}

	p.logger.Debugf("Packaged %d entries of %s into %s", entries, srcDir, archivePath)
	return nil
}

func writeEntry(tw *tar.Writer, file, name string, fi os.FileInfo) error {
	var link string
	if fi.Mode()&os.ModeSymlink != 0 {
		var err error
		if link, err = os.Readlink(file); err != nil {
			return fmt.Errorf("read symlink: %w", err)
		}
	}

	header, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return fmt.Errorf("create file info header: %w", err)
	}
	header.Name = name
	if fi.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar file header: %w", err)
	}

	// nothing more to do for non-regular files or directories
	if !fi.Mode().IsRegular() {
		return nil
	}

	data, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer data.Close() //nolint:errcheck

	if _, err := io.Copy(tw, data); err != nil {
		return fmt.Errorf("copy %s to archive: %w", name, err)
	}
	return nil
}

func ignored(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if match, _ := doublestar.Match(pattern, name); match {
			return true
		}
		// "dir/**" also excludes the directory entry itself
		if strings.HasSuffix(pattern, "/**") && strings.TrimSuffix(pattern, "/**") == name {
			return true
		}
	}
	return false
}

// IsEmptyDir reports whether path is a directory without any entries.
func IsEmptyDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}

	dir, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer dir.Close() //nolint:errcheck

	_, err = dir.Readdirnames(1) // query only 1 child
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
