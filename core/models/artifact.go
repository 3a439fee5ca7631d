package models

import (
	"fmt"
	"sort"
)

// ArtifactKind identifies what a stage produced. The set is closed.
type ArtifactKind string

const (
	KindGeometrySource     ArtifactKind = "geometry_source"
	KindNormalizedGeometry ArtifactKind = "normalized_geometry"
	KindSurfaceMesh        ArtifactKind = "surface_mesh"
	KindValidationReport   ArtifactKind = "validation_report"
)

// Valid reports whether k is one of the known artifact kinds
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindGeometrySource, KindNormalizedGeometry, KindSurfaceMesh, KindValidationReport:
		return true
	}
	return false
}

// Metadata keys shared by providers and the controller
const (
	MetaFormat        = "format"
	MetaFaceCount     = "face_count"
	MetaVertexCount   = "vertex_count"
	MetaSource        = "source"
	MetaTopologyValid = "topology_valid"
	MetaFineness      = "fineness"
	MetaLastOp        = "last_op"
	MetaPassed        = "passed"
	MetaFailures      = "failures"
	MetaMetrics       = "metrics"
	MetaDetails       = "details"
)

// MemoryLocation is the locator used for artifacts that only exist in memory
const MemoryLocation = "memory"

// Artifact is a reference to a named output of a stage. It is immutable:
// every provider call produces a new one.
type Artifact struct {
	kind     ArtifactKind
	location string
	metadata map[string]interface{}
}

// NewArtifact builds an artifact after checking the metadata sub-schema
// declared for kind. A schema mismatch is a contract violation.
func NewArtifact(kind ArtifactKind, location string, metadata map[string]interface{}) (Artifact, error) {
	if !kind.Valid() {
		return Artifact{}, Violationf("unknown artifact kind %q", kind)
	}
	if location == "" {
		return Artifact{}, Violationf("%s artifact requires a location", kind)
	}
	if err := validateMetadata(kind, metadata); err != nil {
		return Artifact{}, err
	}
	return Artifact{
		kind:     kind,
		location: location,
		metadata: copyMetadata(metadata),
	}, nil
}

// MustArtifact is NewArtifact for inputs known to be valid
func MustArtifact(kind ArtifactKind, location string, metadata map[string]interface{}) Artifact {
	a, err := NewArtifact(kind, location, metadata)
	if err != nil {
		panic(err)
	}
	return a
}

// Kind returns the artifact kind
func (a Artifact) Kind() ArtifactKind { return a.kind }

// Location returns the opaque locator (file path or memory handle)
func (a Artifact) Location() string { return a.location }

// IsZero reports whether a was never constructed
func (a Artifact) IsZero() bool { return a.kind == "" }

// Metadata returns a copy of the artifact metadata
func (a Artifact) Metadata() map[string]interface{} {
	return copyMetadata(a.metadata)
}

// Meta returns a single metadata value
func (a Artifact) Meta(key string) (interface{}, bool) {
	v, ok := a.metadata[key]
	return v, ok
}

// Float returns a numeric metadata value as float64
func (a Artifact) Float(key string) (float64, bool) {
	v, ok := a.metadata[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Text returns a string metadata value
func (a Artifact) Text(key string) (string, bool) {
	v, ok := a.metadata[key].(string)
	return v, ok
}

func (a Artifact) GoString() string {
	return fmt.Sprintf("Artifact(%s, %q)", a.kind, a.location)
}

type fieldType int

const (
	fieldString fieldType = iota
	fieldInt
	fieldFloat
	fieldBool
	fieldDefects
	fieldMetrics
	fieldStrings
)

type fieldSpec struct {
	typ      fieldType
	required bool
}

// metadataSchemas declares required and optional keys per kind. Unknown keys
// are allowed for forward compatibility.
var metadataSchemas = map[ArtifactKind]map[string]fieldSpec{
	KindGeometrySource: {
		MetaFormat: {typ: fieldString},
	},
	KindNormalizedGeometry: {
		MetaFaceCount:     {typ: fieldInt, required: true},
		MetaSource:        {typ: fieldString, required: true},
		MetaFormat:        {typ: fieldString},
		MetaTopologyValid: {typ: fieldBool},
	},
	KindSurfaceMesh: {
		MetaFineness:    {typ: fieldFloat, required: true},
		MetaLastOp:      {typ: fieldString},
		MetaVertexCount: {typ: fieldInt},
		MetaFaceCount:   {typ: fieldInt},
	},
	KindValidationReport: {
		MetaPassed:   {typ: fieldBool, required: true},
		MetaFailures: {typ: fieldDefects, required: true},
		MetaMetrics:  {typ: fieldMetrics, required: true},
		MetaDetails:  {typ: fieldStrings},
	},
}

func validateMetadata(kind ArtifactKind, metadata map[string]interface{}) error {
	schema := metadataSchemas[kind]

	keys := make([]string, 0, len(schema))
	for key := range schema {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		spec := schema[key]
		value, ok := metadata[key]
		if !ok {
			if spec.required {
				return Violationf("%s metadata missing required key %q", kind, key)
			}
			continue
		}
		if !matchesType(spec.typ, value) {
			return Violationf("%s metadata key %q has unexpected type %T", kind, key, value)
		}
	}

	switch kind {
	case KindSurfaceMesh:
		f, _ := toFloat(metadata[MetaFineness])
		if f < 0 || f > 1 {
			return Violationf("surface mesh fineness %v outside [0,1]", f)
		}
	case KindValidationReport:
		passed := metadata[MetaPassed].(bool)
		failures := metadata[MetaFailures].([]Defect)
		if passed != (len(failures) == 0) {
			return Violationf("validation report passed=%t inconsistent with %d failures", passed, len(failures))
		}
		for _, d := range failures {
			if !d.Valid() {
				return Violationf("unknown defect tag %q", d)
			}
		}
	}
	return nil
}

func matchesType(typ fieldType, value interface{}) bool {
	switch typ {
	case fieldString:
		_, ok := value.(string)
		return ok
	case fieldInt:
		switch value.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case fieldFloat:
		_, ok := toFloat(value)
		return ok
	case fieldBool:
		_, ok := value.(bool)
		return ok
	case fieldDefects:
		_, ok := value.([]Defect)
		return ok
	case fieldMetrics:
		_, ok := value.(map[string]float64)
		return ok
	case fieldStrings:
		_, ok := value.([]string)
		return ok
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// copyMetadata copies the top level and the collection values the schemas
// know about so callers cannot reach into an artifact.
func copyMetadata(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case []Defect:
			out[k] = append([]Defect(nil), val...)
		case []string:
			out[k] = append([]string(nil), val...)
		case map[string]float64:
			m := make(map[string]float64, len(val))
			for mk, mv := range val {
				m[mk] = mv
			}
			out[k] = m
		default:
			out[k] = v
		}
	}
	return out
}
