// Package codearchive turns the code path of a deployment into a single uploadable file.
package codearchive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/appwrite/go-cliutils/packager"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

// Archive is the file uploaded as deployment code.
type Archive struct {
	Path string
	// tempDir is set when the archive was packaged and has to be removed after the upload.
	tempDir string
}

// Packaged reports whether the archive was created from a directory.
func (a Archive) Packaged() bool {
	return a.tempDir != ""
}

// Remove deletes the archive if it was packaged. User provided files are left alone.
func (a Archive) Remove() error {
	if a.tempDir == "" {
		return nil
	}
	return os.RemoveAll(a.tempDir)
}

// Preparer ...
type Preparer struct {
	packager     *packager.Packager
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	logger       log.Logger
}

// NewPreparer ...
func NewPreparer(logger log.Logger) *Preparer {
	return &Preparer{
		packager:     packager.NewPackager(logger),
		pathProvider: pathutil.NewPathProvider(),
		pathModifier: pathutil.NewPathModifier(),
		pathChecker:  pathutil.NewPathChecker(),
		logger:       logger,
	}
}

// Prepare resolves code to an uploadable file. A file is used as is, a directory is
// packaged into a temporary code.tar.gz honoring the ignore patterns.
func (p *Preparer) Prepare(code string, ignore []string) (Archive, error) {
	if code == "" {
		return Archive{}, fmt.Errorf("code path is empty")
	}

	absPath, err := p.pathModifier.AbsPath(code) // resolves ~/ and expands any envs
	if err != nil {
		return Archive{}, fmt.Errorf("convert code path %s to absolute path: %w", code, err)
	}

	exists, err := p.pathChecker.IsPathExists(absPath)
	if err != nil {
		return Archive{}, fmt.Errorf("check code path %s: %w", absPath, err)
	}
	if !exists {
		return Archive{}, fmt.Errorf("code path does not exist: %s", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return Archive{}, fmt.Errorf("stat code path: %w", err)
	}
	if !info.IsDir() {
		p.logger.Debugf("Using %s as the code archive", absPath)
		return Archive{Path: absPath}, nil
	}

	empty, err := packager.IsEmptyDir(absPath)
	if err != nil {
		return Archive{}, fmt.Errorf("check code directory: %w", err)
	}
	if empty {
		return Archive{}, fmt.Errorf("code directory is empty: %s", absPath)
	}

	tempDir, err := p.pathProvider.CreateTempDir("appwrite-code")
	if err != nil {
		return Archive{}, fmt.Errorf("create temp dir: %w", err)
	}
	archive := Archive{
		Path:    filepath.Join(tempDir, packager.ArchiveName),
		tempDir: tempDir,
	}

	p.logger.Printf("Packaging %s", absPath)
	if err := p.packager.Package(absPath, archive.Path, ignore); err != nil {
		if removeErr := archive.Remove(); removeErr != nil {
			p.logger.Warnf("Failed to remove %s: %s", tempDir, removeErr)
		}
		return Archive{}, fmt.Errorf("package code: %w", err)
	}

	return archive, nil
}
