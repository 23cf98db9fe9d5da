package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/reconcile"
	"github.com/talentflowlabs/talentflow-core/pkg/snowflake"
	"github.com/talentflowlabs/talentflow-core/pkg/testhelper"
)

func TestJobStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pg, err := testhelper.SetupPostgres(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pg.Teardown(ctx); err != nil {
			t.Logf("failed to teardown container: %v", err)
		}
	}()

	db, err := gorm.Open(postgres.Open(pg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&reconcile.Job{}))

	ids, err := snowflake.NewNode()
	require.NoError(t, err)
	store := reconcile.NewJobStore(db, ids, &config.Config{MaxAttempts: 3})

	t.Run("OpenIsIdempotentPerLiveDrift", func(t *testing.T) {
		first, created, err := store.Open(ctx, "booking", 1, reconcile.ReasonCalendarEventMissing, "event cal_1 not found")
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := store.Open(ctx, "booking", 1, reconcile.ReasonCalendarEventMissing, "event cal_1 not found")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)

		// A different reason for the same booking is a separate job.
		_, created, err = store.Open(ctx, "booking", 1, reconcile.ReasonATSNoteMissing, "note missing")
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("RepairFreesTheKey", func(t *testing.T) {
		job, _, err := store.Open(ctx, "booking", 2, reconcile.ReasonCalendarEventMissing, "gone")
		require.NoError(t, err)

		require.NoError(t, store.MarkRepaired(ctx, job, "recreated cal_new"))
		assert.Equal(t, reconcile.StatusRepaired, job.Status)

		// The same drift reappearing opens a fresh job.
		again, created, err := store.Open(ctx, "booking", 2, reconcile.ReasonCalendarEventMissing, "gone again")
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, job.ID, again.ID)
	})

	t.Run("EscalatedHoldsTheKey", func(t *testing.T) {
		job, _, err := store.Open(ctx, "booking", 3, reconcile.ReasonStateMismatch, "canceled upstream")
		require.NoError(t, err)
		require.NoError(t, store.Escalate(ctx, job, "canceled upstream"))

		// A rescan of the same drift lands on the escalated job instead of
		// opening a duplicate.
		again, created, err := store.Open(ctx, "booking", 3, reconcile.ReasonStateMismatch, "canceled upstream")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, job.ID, again.ID)

		listed, err := store.ListOpen(ctx, 50)
		require.NoError(t, err)

		found := false
		for _, j := range listed {
			if j.ID == job.ID {
				found = true
				assert.Equal(t, reconcile.StatusEscalated, j.Status)
			}
		}
		assert.True(t, found, "escalated jobs stay on the operator surface")
	})

	t.Run("ResolveIsFinal", func(t *testing.T) {
		job, _, err := store.Open(ctx, "booking", 4, reconcile.ReasonStateMismatch, "mismatch")
		require.NoError(t, err)
		require.NoError(t, store.Resolve(ctx, job))
		assert.Equal(t, reconcile.StatusResolved, job.Status)
		assert.NotNil(t, job.ResolvedAt)

		err = store.Resolve(ctx, job)
		assert.Error(t, err, "a closed job cannot be resolved twice")
	})

	t.Run("RecordAttempt", func(t *testing.T) {
		job, _, err := store.Open(ctx, "booking", 5, reconcile.ReasonATSNoteMissing, "note gone")
		require.NoError(t, err)

		require.NoError(t, store.RecordAttempt(ctx, job, assert.AnError))
		require.NoError(t, store.RecordAttempt(ctx, job, assert.AnError))
		assert.Equal(t, 2, job.Attempts)

		fresh, err := store.FindByDedupKey(ctx, job.DedupKey)
		require.NoError(t, err)
		assert.Equal(t, 2, fresh.Attempts)
		assert.NotEmpty(t, fresh.LastError)
	})

	t.Run("CountByStatus", func(t *testing.T) {
		counts, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.NotZero(t, counts[reconcile.StatusOpen])
		assert.NotZero(t, counts[reconcile.StatusRepaired])
		assert.NotZero(t, counts[reconcile.StatusEscalated])
		assert.NotZero(t, counts[reconcile.StatusResolved])
	})
}
