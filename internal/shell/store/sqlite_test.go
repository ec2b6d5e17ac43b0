package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a store backed by a temp-dir SQLite file.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "deckhand.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDeployment(project string) *Deployment {
	return &Deployment{
		ID:         uuid.NewString(),
		Project:    project,
		Descriptor: "services:\n  app:\n    image: nginx\n",
		Status:     DeploymentStatusDeploying,
	}
}

// =============================================================================
// Deployment Tests
// =============================================================================

func TestCreateAndGetDeployment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeployment("shop")
	require.NoError(t, s.CreateDeployment(ctx, d))

	got, err := s.GetDeployment(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "shop", got.Project)
	assert.Equal(t, DeploymentStatusDeploying, got.Status)
	assert.Equal(t, d.Descriptor, got.Descriptor)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetDeployment_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDeployment(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDeployment_DuplicateProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDeployment(ctx, testDeployment("shop")))
	err := s.CreateDeployment(ctx, testDeployment("shop"))
	assert.ErrorIs(t, err, ErrDuplicateProject)
}

func TestUpdateDeploymentStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeployment("shop")
	require.NoError(t, s.CreateDeployment(ctx, d))
	require.NoError(t, s.UpdateDeploymentStatus(ctx, d.ID, DeploymentStatusRunning))

	got, err := s.GetDeployment(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, DeploymentStatusRunning, got.Status)

	assert.ErrorIs(t, s.UpdateDeploymentStatus(ctx, "missing", DeploymentStatusStopped), ErrNotFound)
}

func TestDeleteDeployment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeployment("shop")
	require.NoError(t, s.CreateDeployment(ctx, d))
	require.NoError(t, s.DeleteDeployment(ctx, d.ID))

	_, err := s.GetDeployment(ctx, "shop")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteDeployment(ctx, d.ID), ErrNotFound)
}

func TestListDeployments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDeployment(ctx, testDeployment("zoo")))
	require.NoError(t, s.CreateDeployment(ctx, testDeployment("app")))

	list, err := s.ListDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "app", list[0].Project)
	assert.Equal(t, "zoo", list[1].Project)
}

// =============================================================================
// Instance Tests
// =============================================================================

func TestUpsertAndListInstances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeployment("shop")
	require.NoError(t, s.CreateDeployment(ctx, d))

	rec := &InstanceRecord{
		DeploymentID: d.ID,
		ServiceName:  "backend",
		ContainerID:  "abc123",
		State:        deployment.InstanceStarting,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.UpsertInstance(ctx, rec))

	// Upsert again with a new state; no duplicate row.
	rec.State = deployment.InstanceRunning
	rec.RestartCount = 1
	require.NoError(t, s.UpsertInstance(ctx, rec))

	list, err := s.ListInstances(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "backend", list[0].ServiceName)
	assert.Equal(t, "abc123", list[0].ContainerID)
	assert.Equal(t, deployment.InstanceRunning, list[0].State)
	assert.Equal(t, 1, list[0].RestartCount)
}

func TestListInstances_SortedByService(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeployment("shop")
	require.NoError(t, s.CreateDeployment(ctx, d))

	for _, name := range []string{"mongo", "client", "backend"} {
		require.NoError(t, s.UpsertInstance(ctx, &InstanceRecord{
			DeploymentID: d.ID,
			ServiceName:  name,
			ContainerID:  "id-" + name,
			State:        deployment.InstanceRunning,
			StartedAt:    time.Now().UTC(),
		}))
	}

	list, err := s.ListInstances(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "backend", list[0].ServiceName)
	assert.Equal(t, "client", list[1].ServiceName)
	assert.Equal(t, "mongo", list[2].ServiceName)
}

func TestDeleteInstances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeployment("shop")
	require.NoError(t, s.CreateDeployment(ctx, d))
	require.NoError(t, s.UpsertInstance(ctx, &InstanceRecord{
		DeploymentID: d.ID,
		ServiceName:  "backend",
		ContainerID:  "abc",
		State:        deployment.InstanceRunning,
		StartedAt:    time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteInstances(ctx, d.ID))
	list, err := s.ListInstances(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteDeployment_CascadesInstances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := testDeployment("shop")
	require.NoError(t, s.CreateDeployment(ctx, d))
	require.NoError(t, s.UpsertInstance(ctx, &InstanceRecord{
		DeploymentID: d.ID,
		ServiceName:  "backend",
		ContainerID:  "abc",
		State:        deployment.InstanceRunning,
		StartedAt:    time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteDeployment(ctx, d.ID))

	list, err := s.ListInstances(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
