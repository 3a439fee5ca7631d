package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-orchestrator/core/models"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

type memoryArtifacts struct {
	records []models.RunArtifact
	err     error
}

func (m *memoryArtifacts) CreateArtifact(_ context.Context, runID string, t models.RunArtifactType, uri string, meta map[string]interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, models.RunArtifact{RunID: runID, Type: t, URI: uri, MetaJSON: meta})
	return nil
}

func (m *memoryArtifacts) GetRunArtifacts(_ context.Context, runID string, t *models.RunArtifactType) ([]models.RunArtifact, error) {
	var out []models.RunArtifact
	for _, a := range m.records {
		if a.RunID == runID && (t == nil || a.Type == *t) {
			out = append(out, a)
		}
	}
	return out, nil
}

func writeMesh(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("solid bracket\nendsolid bracket\n"), 0o644))
	return p
}

func TestPublish_UploadsAndRecords(t *testing.T) {
	client := &fakeS3{}
	artifacts := &memoryArtifacts{}
	mp := NewMeshPublisher(client, "meshes", "published", artifacts, nil)
	mesh := writeMesh(t, "bracket_02_repair_watertight.stl")

	uri, err := mp.Publish(context.Background(), "run-1", mesh)
	require.NoError(t, err)

	assert.Equal(t, "s3://meshes/published/run-1/bracket_02_repair_watertight.stl", uri)
	require.NotNil(t, client.input)
	assert.Equal(t, "meshes", aws.ToString(client.input.Bucket))
	assert.Equal(t, "published/run-1/bracket_02_repair_watertight.stl", aws.ToString(client.input.Key))
	assert.Equal(t, "model/stl", aws.ToString(client.input.ContentType))
	assert.Equal(t, "run-1", client.input.Metadata["run-id"])
	assert.Equal(t, "solid bracket\nendsolid bracket\n", string(client.body))

	require.Len(t, artifacts.records, 1)
	rec := artifacts.records[0]
	assert.Equal(t, models.RunArtifactPublished, rec.Type)
	assert.Equal(t, uri, rec.URI)
	assert.Equal(t, mesh, rec.MetaJSON["source"])
}

func TestPublish_Failures(t *testing.T) {
	mesh := writeMesh(t, "a.stl")

	_, err := NewMeshPublisher(&fakeS3{}, "b", "", nil, nil).Publish(context.Background(), "r", filepath.Join(t.TempDir(), "missing.stl"))
	assert.ErrorContains(t, err, "failed to open mesh")

	_, err = NewMeshPublisher(&fakeS3{err: errors.New("AccessDenied")}, "b", "", nil, nil).Publish(context.Background(), "r", mesh)
	assert.ErrorContains(t, err, "AccessDenied")

	uri, err := NewMeshPublisher(&fakeS3{}, "b", "", &memoryArtifacts{err: errors.New("db down")}, nil).Publish(context.Background(), "r", mesh)
	assert.ErrorContains(t, err, "failed to record published mesh")
	assert.Equal(t, "s3://b/r/a.stl", uri)
}

func TestLatestPublished(t *testing.T) {
	now := time.Now()
	artifacts := &memoryArtifacts{records: []models.RunArtifact{
		{RunID: "r", Type: models.RunArtifactPublished, URI: "s3://b/r/old.stl", CreatedAt: now.Add(-time.Hour)},
		{RunID: "r", Type: models.RunArtifactPublished, URI: "s3://b/r/new.stl", CreatedAt: now},
		{RunID: "r", Type: models.RunArtifactMesh, URI: "/work/r/r_03_remesh.stl", CreatedAt: now.Add(time.Hour)},
		{RunID: "other", Type: models.RunArtifactPublished, URI: "s3://b/other/x.stl", CreatedAt: now.Add(time.Hour)},
	}}

	uri, err := LatestPublished(context.Background(), artifacts, "r")
	require.NoError(t, err)
	assert.Equal(t, "s3://b/r/new.stl", uri)

	_, err = LatestPublished(context.Background(), artifacts, "none")
	assert.ErrorIs(t, err, ErrNotPublished)
}
