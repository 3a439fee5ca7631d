// Package storage publishes final meshes to object storage and keeps track
// of where they went.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"mesh-orchestrator/core/models"
)

// ObjectPutter is the part of the S3 API the publisher uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArtifactLister lists run artifacts
type ArtifactLister interface {
	GetRunArtifacts(ctx context.Context, runID string, artifactType *models.RunArtifactType) ([]models.RunArtifact, error)
}

// ArtifactStore records and lists run artifacts
type ArtifactStore interface {
	ArtifactLister
	CreateArtifact(ctx context.Context, runID string, artifactType models.RunArtifactType, uri string, meta map[string]interface{}) error
}

// NewS3Client creates an S3 client from the default credential chain
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// MeshPublisher uploads final meshes to S3 and records them as published
// artifacts of their run
type MeshPublisher struct {
	client    ObjectPutter
	bucket    string
	prefix    string
	artifacts ArtifactStore
	logger    *zap.Logger
}

// NewMeshPublisher creates a mesh publisher. Objects are written under
// <prefix>/<run id>/.
func NewMeshPublisher(client ObjectPutter, bucket, prefix string, artifacts ArtifactStore, logger *zap.Logger) *MeshPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeshPublisher{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Publish uploads the mesh at meshPath and returns its s3:// URI
func (mp *MeshPublisher) Publish(ctx context.Context, runID, meshPath string) (string, error) {
	f, err := os.Open(meshPath)
	if err != nil {
		return "", fmt.Errorf("failed to open mesh: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat mesh: %w", err)
	}

	key := mp.Key(runID, meshPath)
	if _, err := mp.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(mp.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("model/stl"),
		Metadata: map[string]string{
			"run-id": runID,
		},
	}); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", mp.bucket, key)
	mp.logger.Info("Uploaded mesh",
		zap.String("run_id", runID),
		zap.String("uri", uri),
		zap.Int64("bytes", info.Size()))

	if mp.artifacts != nil {
		if err := mp.artifacts.CreateArtifact(ctx, runID, models.RunArtifactPublished, uri, map[string]interface{}{
			"source": meshPath,
			"bucket": mp.bucket,
			"key":    key,
			"bytes":  info.Size(),
		}); err != nil {
			return uri, fmt.Errorf("failed to record published mesh: %w", err)
		}
	}
	return uri, nil
}

// Key returns the object key a run's mesh is stored under
func (mp *MeshPublisher) Key(runID, meshPath string) string {
	return path.Join(mp.prefix, runID, filepath.Base(meshPath))
}

// ErrNotPublished is returned when a run has no published mesh
var ErrNotPublished = errors.New("no published mesh")

// LatestPublished returns the URI of the most recently published mesh of a
// run
func LatestPublished(ctx context.Context, artifacts ArtifactLister, runID string) (string, error) {
	published := models.RunArtifactPublished
	records, err := artifacts.GetRunArtifacts(ctx, runID, &published)
	if err != nil {
		return "", err
	}

	var latest string
	latestTime := time.Time{}
	for _, artifact := range records {
		if artifact.Type != models.RunArtifactPublished {
			continue
		}
		if latest == "" || artifact.CreatedAt.After(latestTime) {
			latestTime = artifact.CreatedAt
			latest = artifact.URI
		}
	}

	if latest == "" {
		return "", fmt.Errorf("%w for run %s", ErrNotPublished, runID)
	}
	return latest, nil
}
