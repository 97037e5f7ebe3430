// Package storage provides sandboxed access to the media library.
// Every path is resolved inside the configured media directory to prevent
// path traversal through owner IDs or file names.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrEscapesLibrary is returned for paths that resolve outside the library.
var ErrEscapesLibrary = errors.New("path escapes media library")

// VideoExtensions lists the file extensions reported by ListFiles.
var VideoExtensions = []string{".mp4", ".mkv", ".mov", ".flv", ".ts", ".webm", ".m4v", ".avi"}

// File describes a file in an owner's media directory.
type File struct {
	// Name is the path relative to the owner's directory.
	Name    string
	Size    int64
	ModTime time.Time
}

// Library is the media directory, laid out as <base>/<owner_id>/<filename>.
type Library struct {
	baseDir string
}

// NewLibrary creates a Library rooted at baseDir, creating it if needed.
func NewLibrary(baseDir string) (*Library, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}

	return &Library{baseDir: absPath}, nil
}

// BaseDir returns the absolute path of the library.
func (l *Library) BaseDir() string {
	return l.baseDir
}

// Resolve returns the absolute path of an owner's file.
func (l *Library) Resolve(ownerID, name string) (string, error) {
	if ownerID == "" || !filepath.IsLocal(ownerID) || strings.ContainsRune(ownerID, filepath.Separator) {
		return "", fmt.Errorf("%w: owner %q", ErrEscapesLibrary, ownerID)
	}
	if name != "" && !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s", ErrEscapesLibrary, name)
	}

	absPath := filepath.Join(l.baseDir, ownerID, name)
	if !strings.HasPrefix(absPath, l.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesLibrary, name)
	}
	return absPath, nil
}

// Stat returns information about an owner's file.
func (l *Library) Stat(ownerID, name string) (fs.FileInfo, error) {
	path, err := l.Resolve(ownerID, name)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// ListFiles returns the video files in an owner's directory tree, sorted by
// name. A missing directory yields an empty list.
func (l *Library) ListFiles(ownerID string) ([]File, error) {
	root, err := l.Resolve(ownerID, "")
	if err != nil {
		return nil, err
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !slices.Contains(VideoExtensions, strings.ToLower(filepath.Ext(d.Name()))) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{Name: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing media files: %w", err)
	}

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Name, b.Name) })
	return files, nil
}
