package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
)

// integrationDB opens the database named by DATABASE_URL, runs the
// migrations, and hands back a transaction that is rolled back when the
// test finishes so every test starts from a clean slate.
func integrationDB(t *testing.T) *sql.Tx {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("skipping integration test: DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "failed to open database connection")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Ping(), "failed to ping database")
	require.NoError(t, Migrate(db), "failed to run migrations")

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")
	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back transaction: %v", err)
		}
	})

	return tx
}

func insertTestJob(t *testing.T, jobs store.JobStore) *domain.Job {
	t.Helper()

	job, err := domain.NewJob("file-abc", uuid.New(), uuid.New(), uuid.New(),
		"/audio/input.m4a", domain.JobTypeTranscription, 3)
	require.NoError(t, err)

	_, err = jobs.Create(context.Background(), job)
	require.NoError(t, err)
	return job
}

func TestPostgresJobStore_Claim(t *testing.T) {
	tx := integrationDB(t)
	jobs := NewPostgresJobStore(tx)
	ctx := context.Background()

	t.Run("only one of two claimants wins", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		claim, err := jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, claim.Attempts)

		_, err = jobs.Claim(ctx, job.ID, time.Hour)
		assert.ErrorIs(t, err, store.ErrNotClaimable)

		var status string
		var attempts int
		err = tx.QueryRowContext(ctx, "SELECT status, attempts FROM jobs WHERE id = $1", job.ID).
			Scan(&status, &attempts)
		require.NoError(t, err)
		assert.Equal(t, string(domain.JobStatusProcessing), status)
		assert.Equal(t, 1, attempts)
	})

	t.Run("failed job is claimable again with a bumped attempt", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		claim, err := jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		require.NoError(t, jobs.Finish(ctx, job.ID, claim.Attempts,
			domain.JobStatusFailed, domain.TimeoutReasonNone, "convert: boom"))

		reclaim, err := jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 2, reclaim.Attempts)
	})

	t.Run("missing job is not claimable", func(t *testing.T) {
		_, err := jobs.Claim(ctx, 999999, time.Hour)
		assert.ErrorIs(t, err, store.ErrNotClaimable)
	})
}

func TestPostgresJobStore_Finish(t *testing.T) {
	tx := integrationDB(t)
	jobs := NewPostgresJobStore(tx)
	ctx := context.Background()

	t.Run("stale attempt cannot overwrite a reclaimed job", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		first, err := jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)

		// The reaper fails the stalled attempt, resets the job, and a
		// second worker claims it.
		require.NoError(t, jobs.Finish(ctx, job.ID, first.Attempts,
			domain.JobStatusFailed, domain.TimeoutReasonHeartbeat, "reaped"))
		require.NoError(t, jobs.ResetForRetry(ctx, job.ID))
		second, err := jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		require.Equal(t, 2, second.Attempts)

		// The original worker wakes up and tries to complete its attempt.
		err = jobs.Finish(ctx, job.ID, first.Attempts,
			domain.JobStatusCompleted, domain.TimeoutReasonNone, "")
		assert.ErrorIs(t, err, store.ErrConflict)

		var status string
		err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = $1", job.ID).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, string(domain.JobStatusProcessing), status)
	})

	t.Run("terminal job rejects a second terminal write", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		claim, err := jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		require.NoError(t, jobs.Finish(ctx, job.ID, claim.Attempts,
			domain.JobStatusCompleted, domain.TimeoutReasonNone, ""))

		err = jobs.Finish(ctx, job.ID, claim.Attempts,
			domain.JobStatusFailed, domain.TimeoutReasonNone, "late failure")
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestPostgresJobStore_ResetForRetry(t *testing.T) {
	tx := integrationDB(t)
	jobs := NewPostgresJobStore(tx)
	ctx := context.Background()

	t.Run("resets a failed job to pending", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		claim, err := jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		require.NoError(t, jobs.Finish(ctx, job.ID, claim.Attempts,
			domain.JobStatusFailed, domain.TimeoutReasonNone, "split: boom"))

		require.NoError(t, jobs.ResetForRetry(ctx, job.ID))

		var status, errMsg string
		var attempts int
		err = tx.QueryRowContext(ctx,
			"SELECT status, error_message, attempts FROM jobs WHERE id = $1", job.ID).
			Scan(&status, &errMsg, &attempts)
		require.NoError(t, err)
		assert.Equal(t, string(domain.JobStatusPending), status)
		assert.Empty(t, errMsg)
		assert.Equal(t, claim.Attempts, attempts)
	})

	t.Run("conflicts unless the job is failed", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		err := jobs.ResetForRetry(ctx, job.ID)
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = jobs.Claim(ctx, job.ID, time.Hour)
		require.NoError(t, err)
		err = jobs.ResetForRetry(ctx, job.ID)
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestPostgresChunkStore_CreateBatch(t *testing.T) {
	tx := integrationDB(t)
	jobs := NewPostgresJobStore(tx)
	chunks := NewPostgresChunkStore(tx)
	ctx := context.Background()

	newChunk := func(t *testing.T, jobID int64, ordinal int, path string) *domain.Chunk {
		t.Helper()
		start := float64(ordinal) * 180
		end := start + 180
		chunk, err := domain.NewChunk(jobID, ordinal, path, &start, &end)
		require.NoError(t, err)
		return chunk
	}

	t.Run("registering again after a retry overwrites the old rows", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		first := []*domain.Chunk{
			newChunk(t, job.ID, 0, "/work/a/chunk-000.mp3"),
			newChunk(t, job.ID, 1, "/work/a/chunk-001.mp3"),
		}
		require.NoError(t, chunks.CreateBatch(ctx, first))
		require.NoError(t, chunks.SetTranscript(ctx, job.ID, 0, "first attempt"))

		// The retried attempt splits the input again. Its rows must land
		// instead of failing on the leftovers.
		second := []*domain.Chunk{
			newChunk(t, job.ID, 0, "/work/b/chunk-000.mp3"),
			newChunk(t, job.ID, 1, "/work/b/chunk-001.mp3"),
			newChunk(t, job.ID, 2, "/work/b/chunk-002.mp3"),
		}
		require.NoError(t, chunks.CreateBatch(ctx, second))

		listed, err := chunks.ListByJob(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, "/work/b/chunk-000.mp3", listed[0].FilePath)
		assert.Equal(t, domain.ChunkStatusPending, listed[0].Status)
		assert.Empty(t, listed[0].Transcript, "the old attempt's transcript must not survive")
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		assert.NoError(t, chunks.CreateBatch(ctx, nil))
	})
}

func TestPostgresRecordStore_Upsert(t *testing.T) {
	tx := integrationDB(t)
	jobs := NewPostgresJobStore(tx)
	records := NewPostgresRecordStore(tx)
	ctx := context.Background()

	t.Run("upserting the same job twice keeps one row and one id", func(t *testing.T) {
		job := insertTestJob(t, jobs)

		record, err := domain.NewProcessedRecord(job, "first transcript", domain.QualityStatusComplete)
		require.NoError(t, err)
		record.Summary = "first summary"

		firstID, err := records.Upsert(ctx, record)
		require.NoError(t, err)

		replacement, err := domain.NewProcessedRecord(job, "second transcript", domain.QualityStatusComplete)
		require.NoError(t, err)
		replacement.Summary = "second summary"

		secondID, err := records.Upsert(ctx, replacement)
		require.NoError(t, err)
		assert.Equal(t, firstID, secondID, "the replay must land on the existing row")

		var count int
		require.NoError(t, tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM records WHERE job_id = $1", job.ID).Scan(&count))
		assert.Equal(t, 1, count)

		var transcript, summary string
		require.NoError(t, tx.QueryRowContext(ctx,
			"SELECT transcript, summary FROM records WHERE job_id = $1", job.ID).
			Scan(&transcript, &summary))
		assert.Equal(t, "second transcript", transcript)
		assert.Equal(t, "second summary", summary)
	})
}
