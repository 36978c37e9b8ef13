package discipline

import (
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/Lllllllleong/drawingflow/internal/models"
)

// Classifier maps a drawing path to a discipline tag.
type Classifier interface {
	Classify(path string) string
}

// PrefixClassifier matches the first two characters of the file name against
// the table's accepted prefixes. It never fails; unmatched files are General.
type PrefixClassifier struct {
	table *Table
}

// NewPrefixClassifier returns a prefix-mode classifier over table.
func NewPrefixClassifier(table *Table) *PrefixClassifier {
	return &PrefixClassifier{table: table}
}

// Classify implements Classifier.
func (c *PrefixClassifier) Classify(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	prefix := strings.ToUpper(name)
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	if prefix == "" {
		return General
	}
	for _, d := range c.table.Disciplines {
		for _, p := range d.Prefixes {
			if p != "" && strings.HasPrefix(prefix, strings.ToUpper(p)) {
				return d.Name
			}
		}
	}
	return General
}

// PathClassifier looks for a discipline keyword among the segments of the
// path relative to the job root. Keywords match whole words of a segment, so
// "Electrical Drawings" and "02-Mechanical" match while "archive" does not
// match "a". The first segment in path order that matches decides; ties
// within a segment go to the earlier discipline.
type PathClassifier struct {
	table  *Table
	root   string
	logger *slog.Logger
}

// NewPathClassifier returns a path-segment classifier rooted at root.
func NewPathClassifier(table *Table, root string, logger *slog.Logger) *PathClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PathClassifier{table: table, root: root, logger: logger}
}

// Classify implements Classifier. Paths without a keyword yield Undetermined.
func (c *PathClassifier) Classify(path string) string {
	for _, segment := range c.segments(path) {
		phrase := " " + strings.Join(words(segment), " ") + " "
		for _, d := range c.table.Disciplines {
			for _, kw := range d.PathKeywords {
				kwWords := words(kw)
				if len(kwWords) == 0 {
					continue
				}
				if strings.Contains(phrase, " "+strings.Join(kwWords, " ")+" ") {
					return d.Name
				}
			}
		}
	}
	c.logger.Warn("Could not determine drawing type", "file", path, "errorKind", models.ErrClassificationAmbiguous)
	return Undetermined
}

// words lowercases s and splits it on every non-alphanumeric rune.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (c *PathClassifier) segments(path string) []string {
	rel := path
	if c.root != "" {
		if r, err := filepath.Rel(c.root, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	if n := len(parts); n > 0 {
		last := parts[n-1]
		parts[n-1] = strings.TrimSuffix(last, filepath.Ext(last))
	}
	out := parts[:0]
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && p != "." && p != ".." {
			out = append(out, p)
		}
	}
	return out
}

// New returns the classifier for mode ("prefix" or "path").
func New(mode string, table *Table, root string, logger *slog.Logger) Classifier {
	if strings.EqualFold(mode, "path") {
		return NewPathClassifier(table, root, logger)
	}
	return NewPrefixClassifier(table)
}
