package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/inovacc/labelr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func setupTestStore(t *testing.T) (*Store, *testClock, func()) {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.WithClock(clock.Now)

	return s, clock, func() { _ = s.Close() }
}

func TestOpen(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "labelr.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.UpsertModel(ctx, "octo/model", true)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)

	defer func() { _ = s.Close() }()

	m, err := s.GetModel(ctx, "octo/model")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Ready)
}

func TestModels(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	m, err := s.GetModel(ctx, "octo/model")
	require.NoError(t, err)
	assert.Nil(t, m)

	created := clock.Now()

	m, err = s.UpsertModel(ctx, "octo/model", false)
	require.NoError(t, err)
	assert.False(t, m.Ready)
	assert.True(t, m.CreatedAt.Equal(created))
	assert.True(t, m.UpdatedAt.Equal(created))

	clock.Advance(time.Minute)

	m, err = s.UpsertModel(ctx, "octo/model", true)
	require.NoError(t, err)
	assert.True(t, m.Ready)
	assert.True(t, m.CreatedAt.Equal(created), "created_at is kept on update")
	assert.True(t, m.UpdatedAt.Equal(created.Add(time.Minute)))
}

func TestArmModel(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	timeout := time.Hour

	prev, armed, err := s.ArmModel(ctx, "octo/model", timeout)
	require.NoError(t, err)
	assert.True(t, armed)
	assert.Nil(t, prev)

	clock.Advance(30 * time.Minute)

	prev, armed, err = s.ArmModel(ctx, "octo/model", timeout)
	require.NoError(t, err)
	assert.False(t, armed, "unready record within timeout is in progress")
	require.NotNil(t, prev)
	assert.False(t, prev.Ready)

	clock.Advance(30 * time.Minute)

	_, armed, err = s.ArmModel(ctx, "octo/model", timeout)
	require.NoError(t, err)
	assert.True(t, armed, "record older than timeout is superseded")

	m, err := s.GetModel(ctx, "octo/model")
	require.NoError(t, err)
	assert.True(t, m.UpdatedAt.Equal(clock.Now()))

	_, err = s.UpsertModel(ctx, "octo/model", true)
	require.NoError(t, err)

	prev, armed, err = s.ArmModel(ctx, "octo/model", timeout)
	require.NoError(t, err)
	assert.True(t, armed, "ready record is re-armed")
	assert.True(t, prev.Ready)

	m, err = s.GetModel(ctx, "octo/model")
	require.NoError(t, err)
	assert.False(t, m.Ready)
}

func TestArmModel_Concurrent(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	const callers = 8

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		armed int
	)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, ok, err := s.ArmModel(ctx, "octo/model", time.Hour)
			assert.NoError(t, err)

			if ok {
				mu.Lock()
				armed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, armed)
}

func TestTrainings(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := s.UpsertModel(ctx, "octo/b", true)
	require.NoError(t, err)
	_, err = s.UpsertModel(ctx, "octo/a", false)
	require.NoError(t, err)

	require.NoError(t, s.UpsertTraining(ctx, "alice", "octo/b"))
	require.NoError(t, s.UpsertTraining(ctx, "alice", "octo/a"))
	require.NoError(t, s.UpsertTraining(ctx, "alice", "octo/a"))
	require.NoError(t, s.UpsertTraining(ctx, "bob", "octo/b"))

	models, err := s.ListTrainings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []model.TrainedModel{
		{Name: "octo/a", Ready: false},
		{Name: "octo/b", Ready: true},
	}, models)

	ok, err := s.HasTraining(ctx, "bob", "octo/a")
	require.NoError(t, err)
	assert.False(t, ok)

	models, err = s.ListTrainings(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestTrainings_RequiresModel(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	err := s.UpsertTraining(context.Background(), "alice", "octo/missing")
	assert.Error(t, err)
}

func TestClassifications(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	c, err := s.GetClassification(ctx, "octo/target")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = s.UpsertClassification(ctx, "octo/target", "octo/model", "alice")
	require.NoError(t, err)
	assert.Equal(t, "octo/model", c.Model)
	assert.Equal(t, "alice", c.Username)
	assert.False(t, c.Classified)
	assert.True(t, c.CompletedAt.IsZero())

	clock.Advance(time.Minute)

	ok, err := s.MarkClassified(ctx, "octo/target", "octo/model")
	require.NoError(t, err)
	assert.True(t, ok)

	c, err = s.GetClassification(ctx, "octo/target")
	require.NoError(t, err)
	assert.True(t, c.Classified)
	assert.True(t, c.CompletedAt.Equal(clock.Now()))

	c, err = s.UpsertClassification(ctx, "octo/target", "octo/other", "bob")
	require.NoError(t, err)
	assert.False(t, c.Classified, "changing model re-arms the record")
	assert.True(t, c.CompletedAt.IsZero())
	assert.Equal(t, "bob", c.Username)
}

func TestMarkClassified_NoRecord(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	ok, err := s.MarkClassified(ctx, "octo/missing", "octo/model")
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := s.GetClassification(ctx, "octo/missing")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestMarkClassified_ModelChanged(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := s.UpsertClassification(ctx, "octo/target", "octo/new", "alice")
	require.NoError(t, err)

	ok, err := s.MarkClassified(ctx, "octo/target", "octo/old")
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := s.GetClassification(ctx, "octo/target")
	require.NoError(t, err)
	assert.False(t, c.Classified)
}

func TestArmClassification(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	timeout := time.Hour

	tests := []struct {
		name    string
		advance time.Duration
		model   string
		armed   bool
	}{
		{name: "no record", model: "octo/m1", armed: true},
		{name: "same model within timeout", advance: 10 * time.Minute, model: "octo/m1", armed: false},
		{name: "different model", advance: time.Minute, model: "octo/m2", armed: true},
		{name: "same model just below timeout", advance: timeout - time.Second, model: "octo/m2", armed: false},
		{name: "same model at timeout", advance: time.Second, model: "octo/m2", armed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.advance)

			_, armed, err := s.ArmClassification(ctx, "octo/target", tt.model, "alice", timeout)
			require.NoError(t, err)
			assert.Equal(t, tt.armed, armed)

			c, err := s.GetClassification(ctx, "octo/target")
			require.NoError(t, err)
			assert.Equal(t, tt.model, c.Model)
		})
	}
}

func TestArmClassification_AfterClassified(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, armed, err := s.ArmClassification(ctx, "octo/target", "octo/model", "alice", time.Hour)
	require.NoError(t, err)
	require.True(t, armed)

	_, err = s.MarkClassified(ctx, "octo/target", "octo/model")
	require.NoError(t, err)

	_, armed, err = s.ArmClassification(ctx, "octo/target", "octo/model", "alice", time.Hour)
	require.NoError(t, err)
	assert.False(t, armed)

	c, err := s.GetClassification(ctx, "octo/target")
	require.NoError(t, err)
	assert.True(t, c.Classified, "refused arm leaves the record untouched")

	clock.Advance(time.Hour)

	_, armed, err = s.ArmClassification(ctx, "octo/target", "octo/model", "alice", time.Hour)
	require.NoError(t, err)
	assert.True(t, armed)

	c, err = s.GetClassification(ctx, "octo/target")
	require.NoError(t, err)
	assert.False(t, c.Classified)
}

func TestDisarmModel(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	prev, armed, err := s.ArmModel(ctx, "octo/fresh", time.Hour)
	require.NoError(t, err)
	require.True(t, armed)

	require.NoError(t, s.DisarmModel(ctx, "octo/fresh", prev))

	m, err := s.GetModel(ctx, "octo/fresh")
	require.NoError(t, err)
	assert.Nil(t, m, "a record created by the arm is removed")

	ready, err := s.UpsertModel(ctx, "octo/ready", true)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	prev, armed, err = s.ArmModel(ctx, "octo/ready", time.Hour)
	require.NoError(t, err)
	require.True(t, armed)

	require.NoError(t, s.DisarmModel(ctx, "octo/ready", prev))

	m, err = s.GetModel(ctx, "octo/ready")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Ready)
	assert.True(t, m.UpdatedAt.Equal(ready.UpdatedAt))

	_, armed, err = s.ArmModel(ctx, "octo/ready", time.Hour)
	require.NoError(t, err)
	assert.True(t, armed, "restored record can be armed again")
}

func TestDisarmModel_PinnedByAssociation(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, armed, err := s.ArmModel(ctx, "octo/model", time.Hour)
	require.NoError(t, err)
	require.True(t, armed)
	require.NoError(t, s.UpsertTraining(ctx, "alice", "octo/model"))

	require.NoError(t, s.DisarmModel(ctx, "octo/model", nil))

	m, err := s.GetModel(ctx, "octo/model")
	require.NoError(t, err)
	require.NotNil(t, m)

	_, armed, err = s.ArmModel(ctx, "octo/model", time.Hour)
	require.NoError(t, err)
	assert.True(t, armed, "expired record is no longer in progress")
}

func TestDisarmClassification(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	prev, armed, err := s.ArmClassification(ctx, "octo/new", "octo/model", "alice", time.Hour)
	require.NoError(t, err)
	require.True(t, armed)

	require.NoError(t, s.DisarmClassification(ctx, "octo/new", prev))

	c, err := s.GetClassification(ctx, "octo/new")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, _, err = s.ArmClassification(ctx, "octo/target", "octo/m1", "alice", time.Hour)
	require.NoError(t, err)
	_, err = s.MarkClassified(ctx, "octo/target", "octo/m1")
	require.NoError(t, err)

	before, err := s.GetClassification(ctx, "octo/target")
	require.NoError(t, err)

	clock.Advance(time.Minute)

	prev, armed, err = s.ArmClassification(ctx, "octo/target", "octo/m2", "bob", time.Hour)
	require.NoError(t, err)
	require.True(t, armed)

	require.NoError(t, s.DisarmClassification(ctx, "octo/target", prev))

	c, err = s.GetClassification(ctx, "octo/target")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "octo/m1", c.Model)
	assert.Equal(t, "alice", c.Username)
	assert.True(t, c.Classified)
	assert.True(t, c.StartedAt.Equal(before.StartedAt))
	assert.True(t, c.CompletedAt.Equal(before.CompletedAt))
}

func TestRuns(t *testing.T) {
	s, clock, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	first := &model.Run{ID: "run-1", Kind: model.RunKindTrain, Repo: "octo/model"}
	require.NoError(t, s.CreateRun(ctx, first))
	assert.Equal(t, model.RunQueued, first.Status)

	clock.Advance(time.Second)

	second := &model.Run{ID: "run-2", Kind: model.RunKindClassify, Repo: "octo/target", Model: "octo/model", Batch: true}
	require.NoError(t, s.CreateRun(ctx, second))

	clock.Advance(time.Second)
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", model.RunRunning, ""))

	clock.Advance(time.Second)
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", model.RunFailed, "classifier unavailable"))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Equal(t, "classifier unavailable", run.Error)
	assert.False(t, run.StartedAt.IsZero())
	assert.True(t, run.FinishedAt.After(run.StartedAt))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "octo/model", runs[0].Model)
	assert.True(t, runs[0].Batch)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFailInterruptedRuns(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	for _, id := range []string{"queued", "running", "done"} {
		require.NoError(t, s.CreateRun(ctx, &model.Run{ID: id, Kind: model.RunKindTrain, Repo: "octo/model"}))
	}

	require.NoError(t, s.UpdateRunStatus(ctx, "running", model.RunRunning, ""))
	require.NoError(t, s.UpdateRunStatus(ctx, "done", model.RunSucceeded, ""))

	n, err := s.FailInterruptedRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []string{"queued", "running"} {
		run, err := s.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.RunFailed, run.Status)
		assert.Equal(t, InterruptedError, run.Error)
	}

	run, err := s.GetRun(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, run.Status)
}
