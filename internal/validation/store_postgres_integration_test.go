//go:build integration

package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritax/internal/engine"
	"veritax/internal/worker"
	"veritax/pkg/domain"
	dErrors "veritax/pkg/domain-errors"
	"veritax/pkg/testutil/containers"
)

func TestPostgresRunStore_RoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	store := NewPostgresRunStore(pg.DB)
	require.NoError(t, store.EnsureSchema(ctx))

	run := Run{
		ID:           domain.NewRunID(),
		InstancePath: "/data/inbox/report.xbrl",
		Profile:      "full",
		Stage:        StageReceived,
		Status:       "running",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Create(ctx, run))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.InstancePath, got.InstancePath)
	assert.Equal(t, "running", got.Status)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.CompletedAt)

	done := time.Now().UTC().Truncate(time.Microsecond)
	run.Stage = StageResultsReturned
	run.Status = worker.StatusInvalid
	run.Result = &worker.Result{
		Status:    worker.StatusInvalid,
		FactCount: 1204,
		Errors: []engine.Finding{
			{Code: "formula:assertionUnsatisfied", Message: "v_4852_m: assertion unsatisfied", Severity: "error"},
		},
	}
	run.CompletedAt = &done
	require.NoError(t, store.Update(ctx, run))

	got, err = store.Get(ctx, run.ID)
	require.NoError(t, err)
	require.True(t, got.Completed())
	assert.Equal(t, worker.StatusInvalid, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1204, got.Result.FactCount)
	assert.Equal(t, done, got.CompletedAt.UTC())
}

func TestPostgresRunStore_NotFound(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	store := NewPostgresRunStore(pg.DB)
	require.NoError(t, store.EnsureSchema(ctx))

	_, err := store.Get(ctx, domain.NewRunID())
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))

	err = store.Update(ctx, Run{ID: domain.NewRunID(), CreatedAt: time.Now()})
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
}
