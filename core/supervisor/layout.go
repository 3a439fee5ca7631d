package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Layout assigns file names inside a run's work dir. The names are relied on
// by external tooling:
//
//	<base><ext>               normalized geometry
//	<base>_<NN>_<op>.stl      one file per mesher/optimizer call
type Layout struct {
	workDir string
	base    string
	seq     int
}

// NewLayout derives the base name from the input geometry path
func NewLayout(workDir, inputPath string) *Layout {
	name := filepath.Base(inputPath)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "model"
	}
	return &Layout{workDir: workDir, base: base}
}

// Base returns the model base name
func (l *Layout) Base() string { return l.base }

// Geometry returns the normalized geometry path for the given extension
func (l *Layout) Geometry(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(l.workDir, l.base+ext)
}

// NextMesh returns a fresh mesh path for operation op
func (l *Layout) NextMesh(op string) string {
	l.seq++
	return filepath.Join(l.workDir, fmt.Sprintf("%s_%02d_%s.stl", l.base, l.seq, op))
}
