package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hschendel/stl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-orchestrator/config"
	"mesh-orchestrator/core/models"
)

const cubeStep = `ISO-10303-21;
HEADER;
FILE_SCHEMA(('AUTOMOTIVE_DESIGN'));
ENDSEC;
DATA;
#1=CARTESIAN_POINT('',(0.,0.,0.));
#2=AXIS2_PLACEMENT_3D('',#1,$,$);
#3=PLANE('',#2);
#4=ADVANCED_FACE('',(),#3,.T.);
#5=ADVANCED_FACE('',(),#3,.T.);
#6=ADVANCED_FACE('',(),#3,.T.);
#7=ADVANCED_FACE('',(),#3,.T.);
#8=ADVANCED_FACE('',(),#3,.T.);
#9=ADVANCED_FACE('',(),#3,.T.);
ENDSEC;
END-ISO-10303-21;
`

// writeCube writes a closed, outward-wound unit cube as STL
func writeCube(t *testing.T, path string) {
	t.Helper()
	corners := []stl.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	}
	faces := [][3]int{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{3, 7, 6}, {3, 6, 2},
		{0, 4, 7}, {0, 7, 3},
		{1, 2, 6}, {1, 6, 5},
	}
	solid := &stl.Solid{Name: "cube"}
	for _, f := range faces {
		solid.Triangles = append(solid.Triangles, stl.Triangle{
			Vertices: [3]stl.Vec3{corners[f[0]], corners[f[1]], corners[f[2]]},
		})
	}
	require.NoError(t, solid.WriteFile(path))
}

// fakeGmsh returns a script that copies mesh to whatever -o names
func fakeGmsh(t *testing.T, mesh string) string {
	t.Helper()
	script := "#!/bin/sh\n" +
		"out=\"\"\n" +
		"while [ $# -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"-o\" ]; then out=\"$2\"; fi\n" +
		"  shift\n" +
		"done\n" +
		"cp '" + mesh + "' \"$out\"\n"
	bin := filepath.Join(t.TempDir(), "gmsh")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func execute(t *testing.T, args ...string) (models.RunResult, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()

	var result models.RunResult
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	}
	return result, stderr.String(), err
}

func TestMeshrepair_CleanCubePassesFirstTime(t *testing.T) {
	dir := t.TempDir()
	mesh := filepath.Join(dir, "cube.stl")
	writeCube(t, mesh)
	input := filepath.Join(dir, "cube.step")
	require.NoError(t, os.WriteFile(input, []byte(cubeStep), 0o644))
	workspace := filepath.Join(dir, "work")

	result, _, err := execute(t, input, "--workspace", workspace, "--parser", "step", "--gmsh", fakeGmsh(t, mesh))
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, result.Outcome)
	assert.Equal(t, 1, result.IterationsUsed)
	assert.Equal(t, "cube.step", result.Model)
	assert.Equal(t, filepath.Join(workspace, "cube_01_mesh.stl"), result.FinalMeshLocation)
	require.NotNil(t, result.LastReport)
	assert.True(t, result.LastReport.Passed)
	assert.FileExists(t, filepath.Join(workspace, "cube.step"))
}

func TestMeshrepair_MissingInputIsRejectedBeforeRun(t *testing.T) {
	dir := t.TempDir()
	mesh := filepath.Join(dir, "cube.stl")
	writeCube(t, mesh)
	input := filepath.Join(dir, "absent.step")
	workspace := filepath.Join(dir, "work")

	_, _, err := execute(t, input, "--workspace", workspace, "--gmsh", fakeGmsh(t, mesh))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errRunFailed)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), input)
	assert.NoDirExists(t, workspace)
}

func TestMeshrepair_ParserDefaultMatchesServer(t *testing.T) {
	t.Setenv("PARSER_BACKEND", "")
	cmd := newRootCmd(io.Discard, io.Discard)
	assert.Equal(t, config.BackendGmsh, cmd.Flags().Lookup("parser").DefValue)

	t.Setenv("PARSER_BACKEND", config.BackendStep)
	cmd = newRootCmd(io.Discard, io.Discard)
	assert.Equal(t, config.BackendStep, cmd.Flags().Lookup("parser").DefValue)
}

func TestMeshrepair_PolicyFileIsApplied(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policy, []byte("run:\n  policy:\n    max_iterations: 0\n"), 0o644))

	input := filepath.Join(dir, "a.step")
	require.NoError(t, os.WriteFile(input, []byte(cubeStep), 0o644))

	_, _, err := execute(t, input, "--policy", policy, "--gmsh", "/bin/sh")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errRunFailed)
	assert.Contains(t, err.Error(), "max iterations")
}

func TestMeshrepair_RequiresOneModel(t *testing.T) {
	_, _, err := execute(t)
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.NoError(t, report(&stdout, &stderr, models.RunResult{Outcome: models.RunSuccess}))
	assert.Empty(t, stderr.String())

	stderr.Reset()
	err := report(&stdout, &stderr, models.RunResult{Outcome: models.RunFailure, Error: "Gmsh: No elements in volume 1"})
	assert.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, stderr.String(), "Gmsh: No elements in volume 1")

	stderr.Reset()
	last := models.NewReport([]models.Defect{models.DefectSelfIntersecting}, nil, nil)
	err = report(&stdout, &stderr, models.RunResult{Outcome: models.RunFailure, IterationsUsed: 5, LastReport: &last})
	assert.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, stderr.String(), "after 5 iterations")
}
