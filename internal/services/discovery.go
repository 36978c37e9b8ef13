package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/drawingflow/internal/models"
)

var (
	// ErrInputMissing is returned when the input folder does not exist.
	ErrInputMissing = errors.New("input folder does not exist")
	// ErrNoDrawings is returned when the input folder holds no PDF files.
	ErrNoDrawings = errors.New("no PDF files found in the input folder")
)

// DiscoverDrawings walks root and returns every .pdf file below it in lexical
// path order. Directories named in skip are not entered, so an output folder
// nested inside the input is never re-ingested. Relative skip paths resolve
// against the working directory, the same way root does.
func DiscoverDrawings(root string, skip ...string) ([]models.DrawingFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputMissing, root)
		}
		return nil, fmt.Errorf("failed to read input folder %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInputMissing, root)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input folder %s: %w", root, err)
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		if abs, err := filepath.Abs(s); err == nil {
			skipped[abs] = true
		}
	}

	var files []models.DrawingFile
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != absRoot && skipped[path] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		files = append(files, models.DrawingFile{Path: path, RelativePath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk input folder %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDrawings, root)
	}
	return files, nil
}
