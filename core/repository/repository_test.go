package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-orchestrator/core/models"
)

const runID = "6f1c2b1e-2d1c-4c55-9a37-3f2a4f7f9b10"

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return &DB{DB: db}, mock
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRunRepository_CreateRun(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunRepository(db)
	repo.now = func() time.Time { return fixedNow }

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runs")).
		WithArgs(runID, "bracket", "/in/bracket.step", "/work/"+runID, "", "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.Run{ID: runID, Name: "bracket", InputPath: "/in/bracket.step", WorkDir: "/work/" + runID}
	require.NoError(t, repo.CreateRun(context.Background(), run))
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, fixedNow, run.CreatedAt)
}

func TestRunRepository_CreateRunRejectsBadID(t *testing.T) {
	db, _ := newMock(t)
	err := NewRunRepository(db).CreateRun(context.Background(), &models.Run{ID: "not-a-uuid"})
	assert.Error(t, err)
}

func TestRunRepository_CompleteRun(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunRepository(db)
	repo.now = func() time.Time { return fixedNow }

	report := models.NewReport([]models.Defect{models.DefectSelfIntersecting}, map[string]float64{"face_count": 12}, nil)
	result := models.RunResult{
		Model:             "bracket.step",
		Outcome:           models.RunFailure,
		IterationsUsed:    5,
		FinalMeshLocation: "/work/bracket_05_remesh.stl",
		LastReport:        &report,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET")).
		WithArgs("failed", "failure", int64(5), "/work/bracket_05_remesh.stl", sqlmock.AnyArg(), nil, fixedNow, runID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CompleteRun(context.Background(), runID, result))
}

func TestRunRepository_MarkStartedUnknownRun(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewRunRepository(db).MarkStarted(context.Background(), runID)
	assert.ErrorIs(t, err, ErrNotFound)
}

var runRowColumns = []string{
	"id", "name", "input_path", "work_dir", "policy_yaml", "status", "outcome", "iterations_used",
	"final_mesh_location", "last_report", "error", "created_at", "started_at", "completed_at", "updated_at",
}

func TestRunRepository_GetRun(t *testing.T) {
	db, mock := newMock(t)

	rows := sqlmock.NewRows(runRowColumns).AddRow(
		runID, "bracket", "/in/bracket.step", "/work", "", "succeeded", "success", 2,
		"/work/bracket_02_repair_watertight.stl",
		`{"passed":true,"failures":[],"metrics":{"volume":1}}`,
		nil, fixedNow, fixedNow, fixedNow, fixedNow,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id = $1")).WithArgs(runID).WillReturnRows(rows)

	run, err := NewRunRepository(db).GetRun(context.Background(), runID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, "bracket.step", run.Result.Model)
	assert.Equal(t, 2, run.Result.IterationsUsed)
	require.NotNil(t, run.Result.LastReport)
	assert.True(t, run.Result.LastReport.Passed)
	assert.Equal(t, 1.0, run.Result.LastReport.Metrics["volume"])
	require.NotNil(t, run.StartedAt)
}

func TestRunRepository_GetRunPendingHasNoResult(t *testing.T) {
	db, mock := newMock(t)

	rows := sqlmock.NewRows(runRowColumns).AddRow(
		runID, "", "/in/a.step", "/work", "", "pending", nil, 0,
		nil, nil, nil, fixedNow, nil, nil, fixedNow,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id")).WillReturnRows(rows)

	run, err := NewRunRepository(db).GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Nil(t, run.Result)
	assert.Nil(t, run.StartedAt)
}

func TestRunRepository_GetRunNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id")).WillReturnRows(sqlmock.NewRows(runRowColumns))

	_, err := NewRunRepository(db).GetRun(context.Background(), runID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepository_ListRunsByStatus(t *testing.T) {
	db, mock := newMock(t)

	rows := sqlmock.NewRows(runRowColumns).
		AddRow(runID, "", "/in/a.step", "/work/a", "", "failed", "failure", 1, nil, nil, "boom", fixedNow, nil, nil, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE status = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("failed", int64(20)).
		WillReturnRows(rows)

	status := models.RunStatusFailed
	runs, err := NewRunRepository(db).ListRuns(context.Background(), &status, 20)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "boom", runs[0].Result.Error)
}

func TestEventRepository_RoundTrip(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEventRepository(db)

	from := models.StateValidating
	event := models.RunEvent{
		RunID:     runID,
		At:        fixedNow,
		FromState: &from,
		ToState:   models.StateRemeshing,
		Reason:    "remesh",
		Iteration: 2,
		MetaJSON:  map[string]interface{}{"strategy": "remesh"},
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_events")).
		WithArgs(runID, fixedNow, "validating", "remeshing", "remesh", int64(2), `{"strategy":"remesh"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.CreateRunEvent(context.Background(), event))

	rows := sqlmock.NewRows([]string{"id", "run_id", "at", "from_state", "to_state", "reason", "iteration", "meta_json"}).
		AddRow(1, runID, fixedNow, nil, "parsed", "parsed", 0, `{}`).
		AddRow(2, runID, fixedNow, "validating", "remeshing", "remesh", 2, `{"strategy":"remesh"}`)
	mock.ExpectQuery(regexp.QuoteMeta("FROM run_events")).WithArgs(runID, int64(100)).WillReturnRows(rows)

	events, err := repo.GetRunEvents(context.Background(), runID, 100)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].FromState)
	require.NotNil(t, events[1].FromState)
	assert.Equal(t, models.StateValidating, *events[1].FromState)
	assert.Equal(t, "remesh", events[1].MetaJSON["strategy"])
}

func TestArtifactRepository_FilterByType(t *testing.T) {
	db, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"id", "run_id", "type", "uri", "created_at", "meta_json"}).
		AddRow(3, runID, "published_mesh", "s3://meshes/runs/x/bracket.stl", fixedNow, `{"bucket":"meshes"}`)
	mock.ExpectQuery(regexp.QuoteMeta("FROM run_artifacts")).
		WithArgs(runID, "published_mesh").
		WillReturnRows(rows)

	typ := models.RunArtifactPublished
	artifacts, err := NewArtifactRepository(db).GetRunArtifacts(context.Background(), runID, &typ)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "s3://meshes/runs/x/bracket.stl", artifacts[0].URI)
	assert.Equal(t, "meshes", artifacts[0].MetaJSON["bucket"])
}

func TestRecorder_PersistsEventsArtifactsAndResult(t *testing.T) {
	db, mock := newMock(t)
	rec := NewRecorder(db, nil)
	rec.runs.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	start := models.StateInit
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_artifacts")).
		WithArgs(runID, "geometry", "/work/bracket.brep", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	rec.OnTransition(ctx, models.RunEvent{
		RunID: runID, At: fixedNow, FromState: &start, ToState: models.StateParsed,
		MetaJSON: map[string]interface{}{"geometry": "/work/bracket.brep"},
	})

	// First validation sees the initial mesh, which is already recorded
	meshed := models.StateInitialMesh
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_events")).WillReturnResult(sqlmock.NewResult(2, 1))
	rec.OnTransition(ctx, models.RunEvent{
		RunID: runID, At: fixedNow, FromState: &meshed, ToState: models.StateValidating, Iteration: 1,
		MetaJSON: map[string]interface{}{"mesh": "/work/bracket_01_mesh.stl"},
	})

	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	rec.OnResult(ctx, runID, models.RunResult{Model: "bracket.step", Outcome: models.RunSuccess, IterationsUsed: 1})
}

func TestRecorder_StorageErrorsDoNotPanic(t *testing.T) {
	db, mock := newMock(t)
	rec := NewRecorder(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_events")).WillReturnError(assert.AnError)
	start := models.StateInit
	rec.OnTransition(context.Background(), models.RunEvent{RunID: runID, FromState: &start, ToState: models.StateFailed})
}

func TestRecorder_FinalWritesSurviveCancelledContext(t *testing.T) {
	db, mock := newMock(t)
	rec := NewRecorder(db, nil)
	rec.runs.now = func() time.Time { return fixedNow }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	validating := models.StateValidating
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	rec.OnTransition(ctx, models.RunEvent{
		RunID: runID, At: fixedNow, FromState: &validating, ToState: models.StateFailed, Reason: "provider_failed",
		MetaJSON: map[string]interface{}{"provider": "gmsh", "error": "context canceled"},
	})

	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET")).
		WithArgs("failed", "failure", int64(2), nil, nil, "context canceled", fixedNow, runID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rec.OnResult(ctx, runID, models.RunResult{
		Model: "bracket.step", Outcome: models.RunFailure, IterationsUsed: 2, Error: "context canceled",
	})
}

func TestRecorder_ExhaustedRunRecordsLastMesh(t *testing.T) {
	db, mock := newMock(t)
	rec := NewRecorder(db, nil)

	remeshing := models.StateRemeshing
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_artifacts")).
		WithArgs(runID, "mesh", "/work/bracket_06_remesh.stl", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	rec.OnTransition(context.Background(), models.RunEvent{
		RunID: runID, At: fixedNow, FromState: &remeshing, ToState: models.StateFailed,
		Reason: "max_iterations_reached", Iteration: 5,
		MetaJSON: map[string]interface{}{"mesh": "/work/bracket_06_remesh.stl"},
	})
}
