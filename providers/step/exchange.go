// Package step reads ISO-10303-21 (STEP physical file) exchange files.
// It checks the envelope and the entity graph, counts B-rep faces and
// provides a parser backend that normalizes the file into the work dir.
package step

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	magic   = "ISO-10303-21"
	trailer = "END-ISO-10303-21"
)

// faceEntities are the entity types counted as B-rep faces
var faceEntities = map[string]bool{
	"ADVANCED_FACE": true,
	"FACE_SURFACE":  true,
}

var (
	instanceRe = regexp.MustCompile(`^#(\d+)\s*=\s*(.*)$`)
	typeRe     = regexp.MustCompile(`^([A-Z][A-Z0-9_]*)\s*\(`)
	refRe      = regexp.MustCompile(`#(\d+)`)
	schemaRe   = regexp.MustCompile(`FILE_SCHEMA\s*\(\s*\(\s*'([^']*)'`)
)

// Summary describes a STEP file
type Summary struct {
	Schema    string
	Entities  int
	FaceCount int
	// DanglingRefs lists referenced instance ids that are never defined
	DanglingRefs []int
}

// TopologyValid reports whether every entity reference resolves
func (s Summary) TopologyValid() bool { return len(s.DanglingRefs) == 0 }

// Inspect reads and summarizes the STEP file at path
func Inspect(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(string(data))
}

// Summarize parses the text of a STEP file
func Summarize(text string) (Summary, error) {
	statements := split(text)
	if len(statements) == 0 || statements[0] != magic {
		return Summary{}, fmt.Errorf("missing %s header", magic)
	}
	if statements[len(statements)-1] != trailer {
		return Summary{}, fmt.Errorf("missing %s trailer", trailer)
	}

	var sum Summary
	defined := make(map[int]bool)
	referenced := make(map[int]bool)
	section := ""

	for _, st := range statements[1 : len(statements)-1] {
		switch st {
		case "HEADER", "DATA":
			section = st
			continue
		case "ENDSEC":
			section = ""
			continue
		}

		switch section {
		case "HEADER":
			if m := schemaRe.FindStringSubmatch(st); m != nil {
				sum.Schema = m[1]
			}
		case "DATA":
			m := instanceRe.FindStringSubmatch(st)
			if m == nil {
				return Summary{}, fmt.Errorf("malformed entity instance %q", abbreviate(st))
			}
			id, _ := strconv.Atoi(m[1])
			if defined[id] {
				return Summary{}, fmt.Errorf("entity #%d defined twice", id)
			}
			defined[id] = true
			sum.Entities++

			body := stripStrings(m[2])
			if t := typeRe.FindStringSubmatch(body); t != nil && faceEntities[t[1]] {
				sum.FaceCount++
			}
			for _, ref := range refRe.FindAllStringSubmatch(body, -1) {
				n, _ := strconv.Atoi(ref[1])
				referenced[n] = true
			}
		}
	}

	if sum.Entities == 0 {
		return Summary{}, fmt.Errorf("no DATA entities")
	}
	for id := range referenced {
		if !defined[id] {
			sum.DanglingRefs = append(sum.DanglingRefs, id)
		}
	}
	sort.Ints(sum.DanglingRefs)
	return sum, nil
}

// split breaks the file into ';'-terminated statements, ignoring separators
// inside quoted strings and comments
func split(text string) []string {
	var out []string
	var b strings.Builder
	inString := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inString:
			b.WriteByte(c)
			if c == '\'' {
				if i+1 < len(text) && text[i+1] == '\'' {
					b.WriteByte('\'')
					i++
				} else {
					inString = false
				}
			}
		case c == '\'':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += end + 3
			}
		case c == ';':
			if st := strings.TrimSpace(b.String()); st != "" {
				out = append(out, st)
			}
			b.Reset()
		case c == '\n' || c == '\r':
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return out
}

// stripStrings blanks quoted strings so their contents are not mistaken for
// references
func stripStrings(s string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			if inString && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
			b.WriteByte(c)
			continue
		}
		if !inString {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func abbreviate(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
