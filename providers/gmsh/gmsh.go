// Package gmsh provides parser and mesher backends that drive the gmsh
// command-line tool. Every call runs in its own executor session; outputs are
// committed to the work dir only when gmsh succeeds.
package gmsh

import (
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"mesh-orchestrator/core/executor"
)

// MeshSizeFactor maps fineness in [0,1] to gmsh's characteristic length
// scale: 1.0 at fineness 0 down to 0.1 at fineness 1
func MeshSizeFactor(fineness float64) float64 {
	return 1.0 - 0.9*fineness
}

// diagnostic extracts gmsh's own error text from a failed command
func diagnostic(err error) string {
	var cmdErr *executor.CommandError
	if !errors.As(err, &cmdErr) {
		return err.Error()
	}
	var lines []string
	for _, l := range strings.Split(cmdErr.Output, "\n") {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "Error") {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return cmdErr.Error()
	}
	return strings.Join(lines, "; ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}

func scratchName(output, fallback string) string {
	if name := filepath.Base(output); name != "." && name != string(filepath.Separator) {
		return name
	}
	return fallback
}
