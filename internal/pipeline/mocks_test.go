package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/voxnote/voxnote-api/internal/analysis"
	"github.com/voxnote/voxnote-api/internal/audio"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/queue"
	"github.com/voxnote/voxnote-api/internal/store"
	"github.com/voxnote/voxnote-api/internal/transcribe"
)

// mockJobStore implements store.JobStore with overridable function fields.
// Unset fields succeed with zero values.
type mockJobStore struct {
	CreateFn         func(ctx context.Context, job *domain.Job) (int64, error)
	ClaimFn          func(ctx context.Context, id int64, maxDuration time.Duration) (*store.ClaimResult, error)
	UpdateProgressFn func(ctx context.Context, id int64, upd store.ProgressUpdate) error
	HeartbeatFn      func(ctx context.Context, id int64) error
	FinishFn         func(ctx context.Context, id int64, attempt int, status domain.JobStatus, reason domain.TimeoutReason, errMsg string) error
	GetByIDFn        func(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error)
	ListFn           func(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error)
	ResetForRetryFn  func(ctx context.Context, id int64) error
	FindStalledFn    func(ctx context.Context, heartbeatTimeout time.Duration, now time.Time) ([]*domain.Job, error)
	SetRecordIDFn    func(ctx context.Context, id int64, recordID uuid.UUID) error
}

func (m *mockJobStore) Create(ctx context.Context, job *domain.Job) (int64, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, job)
	}
	return 1, nil
}

func (m *mockJobStore) Claim(ctx context.Context, id int64, maxDuration time.Duration) (*store.ClaimResult, error) {
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, id, maxDuration)
	}
	return &store.ClaimResult{Attempts: 1, TimeoutAt: time.Now().Add(maxDuration)}, nil
}

func (m *mockJobStore) UpdateProgress(ctx context.Context, id int64, upd store.ProgressUpdate) error {
	if m.UpdateProgressFn != nil {
		return m.UpdateProgressFn(ctx, id, upd)
	}
	return nil
}

func (m *mockJobStore) Heartbeat(ctx context.Context, id int64) error {
	if m.HeartbeatFn != nil {
		return m.HeartbeatFn(ctx, id)
	}
	return nil
}

func (m *mockJobStore) Finish(ctx context.Context, id int64, attempt int, status domain.JobStatus, reason domain.TimeoutReason, errMsg string) error {
	if m.FinishFn != nil {
		return m.FinishFn(ctx, id, attempt, status, reason, errMsg)
	}
	return nil
}

func (m *mockJobStore) GetByID(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id, scope)
	}
	return &domain.Job{ID: id, CompanyID: scope.CompanyID}, nil
}

func (m *mockJobStore) List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockJobStore) ResetForRetry(ctx context.Context, id int64) error {
	if m.ResetForRetryFn != nil {
		return m.ResetForRetryFn(ctx, id)
	}
	return nil
}

func (m *mockJobStore) FindStalled(ctx context.Context, heartbeatTimeout time.Duration, now time.Time) ([]*domain.Job, error) {
	if m.FindStalledFn != nil {
		return m.FindStalledFn(ctx, heartbeatTimeout, now)
	}
	return nil, nil
}

func (m *mockJobStore) SetRecordID(ctx context.Context, id int64, recordID uuid.UUID) error {
	if m.SetRecordIDFn != nil {
		return m.SetRecordIDFn(ctx, id, recordID)
	}
	return nil
}

func (m *mockJobStore) WithTx(tx *sql.Tx) store.JobStore { return m }

// mockChunkStore implements store.ChunkStore with overridable fields.
type mockChunkStore struct {
	CreateBatchFn   func(ctx context.Context, chunks []*domain.Chunk) error
	UpdateStatusFn  func(ctx context.Context, jobID int64, ordinal int, status domain.ChunkStatus, errMsg string) error
	SetTranscriptFn func(ctx context.Context, jobID int64, ordinal int, transcript string) error
	ResetForJobFn   func(ctx context.Context, jobID int64) error
	ListByJobFn     func(ctx context.Context, jobID int64) ([]*domain.Chunk, error)
	CountByStatusFn func(ctx context.Context, jobID int64) (map[domain.ChunkStatus]int, error)
}

func (m *mockChunkStore) CreateBatch(ctx context.Context, chunks []*domain.Chunk) error {
	if m.CreateBatchFn != nil {
		return m.CreateBatchFn(ctx, chunks)
	}
	return nil
}

func (m *mockChunkStore) UpdateStatus(ctx context.Context, jobID int64, ordinal int, status domain.ChunkStatus, errMsg string) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, jobID, ordinal, status, errMsg)
	}
	return nil
}

func (m *mockChunkStore) SetTranscript(ctx context.Context, jobID int64, ordinal int, transcript string) error {
	if m.SetTranscriptFn != nil {
		return m.SetTranscriptFn(ctx, jobID, ordinal, transcript)
	}
	return nil
}

func (m *mockChunkStore) ResetForJob(ctx context.Context, jobID int64) error {
	if m.ResetForJobFn != nil {
		return m.ResetForJobFn(ctx, jobID)
	}
	return nil
}

func (m *mockChunkStore) ListByJob(ctx context.Context, jobID int64) ([]*domain.Chunk, error) {
	if m.ListByJobFn != nil {
		return m.ListByJobFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockChunkStore) CountByStatus(ctx context.Context, jobID int64) (map[domain.ChunkStatus]int, error) {
	if m.CountByStatusFn != nil {
		return m.CountByStatusFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockChunkStore) WithTx(tx *sql.Tx) store.ChunkStore { return m }

// mockStepStore implements store.StepStore with overridable fields.
type mockStepStore struct {
	InitializeFn func(ctx context.Context, jobID int64, steps []string) error
	StartFn      func(ctx context.Context, jobID int64, step string, at time.Time) error
	CompleteFn   func(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error
	FailFn       func(ctx context.Context, jobID int64, step string, at time.Time, errMsg string) error
	SkipFn       func(ctx context.Context, jobID int64, step string, reason string) error
	ListByJobFn  func(ctx context.Context, jobID int64) ([]*domain.StepRecord, error)
}

func (m *mockStepStore) Initialize(ctx context.Context, jobID int64, steps []string) error {
	if m.InitializeFn != nil {
		return m.InitializeFn(ctx, jobID, steps)
	}
	return nil
}

func (m *mockStepStore) Start(ctx context.Context, jobID int64, step string, at time.Time) error {
	if m.StartFn != nil {
		return m.StartFn(ctx, jobID, step, at)
	}
	return nil
}

func (m *mockStepStore) Complete(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error {
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, jobID, step, at, duration, metadata)
	}
	return nil
}

func (m *mockStepStore) Fail(ctx context.Context, jobID int64, step string, at time.Time, errMsg string) error {
	if m.FailFn != nil {
		return m.FailFn(ctx, jobID, step, at, errMsg)
	}
	return nil
}

func (m *mockStepStore) Skip(ctx context.Context, jobID int64, step string, reason string) error {
	if m.SkipFn != nil {
		return m.SkipFn(ctx, jobID, step, reason)
	}
	return nil
}

func (m *mockStepStore) ListByJob(ctx context.Context, jobID int64) ([]*domain.StepRecord, error) {
	if m.ListByJobFn != nil {
		return m.ListByJobFn(ctx, jobID)
	}
	return nil, nil
}

// mockRecordStore implements store.RecordStore with overridable fields.
type mockRecordStore struct {
	UpsertFn        func(ctx context.Context, record *domain.ProcessedRecord) (uuid.UUID, error)
	GetByJobIDFn    func(ctx context.Context, jobID int64) (*domain.ProcessedRecord, error)
	ListByCompanyFn func(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error)
}

func (m *mockRecordStore) Upsert(ctx context.Context, record *domain.ProcessedRecord) (uuid.UUID, error) {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, record)
	}
	return record.ID, nil
}

func (m *mockRecordStore) GetByJobID(ctx context.Context, jobID int64) (*domain.ProcessedRecord, error) {
	if m.GetByJobIDFn != nil {
		return m.GetByJobIDFn(ctx, jobID)
	}
	return nil, store.ErrRecordNotFound
}

func (m *mockRecordStore) ListByCompany(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error) {
	if m.ListByCompanyFn != nil {
		return m.ListByCompanyFn(ctx, companyID, limit)
	}
	return nil, nil
}

// mockPublisher implements queue.Publisher.
type mockPublisher struct {
	PublishFn func(ctx context.Context, sub *queue.Submission) error
}

func (m *mockPublisher) Publish(ctx context.Context, sub *queue.Submission) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, sub)
	}
	return nil
}

// mockInvalidator implements RecordCacheInvalidator.
type mockInvalidator struct {
	InvalidateFn func(ctx context.Context, companyID uuid.UUID) error
}

func (m *mockInvalidator) Invalidate(ctx context.Context, companyID uuid.UUID) error {
	if m.InvalidateFn != nil {
		return m.InvalidateFn(ctx, companyID)
	}
	return nil
}

// fakeConverter implements Converter.
type fakeConverter struct {
	needs     bool
	outPath   string
	convertFn func(ctx context.Context, jobID int64, inputPath string) (string, bool, error)
}

func (f *fakeConverter) NeedsConversion(inputPath string) bool { return f.needs }

func (f *fakeConverter) Convert(ctx context.Context, jobID int64, inputPath string) (string, bool, error) {
	if f.convertFn != nil {
		return f.convertFn(ctx, jobID, inputPath)
	}
	return f.outPath, true, nil
}

// fakeSplitter implements Splitter.
type fakeSplitter struct {
	files []audio.ChunkFile
}

func (f *fakeSplitter) Split(ctx context.Context, jobID int64, inputPath string) []audio.ChunkFile {
	return f.files
}

// fakeTranscriber implements Transcriber.
type fakeTranscriber struct {
	fn func(ctx context.Context, jobID int64, chunks []*domain.Chunk,
		onStatus transcribe.StatusCallback, onProgress transcribe.ProgressCallback) (*transcribe.Outcome, error)
}

func (f *fakeTranscriber) ProcessAll(ctx context.Context, jobID int64, chunks []*domain.Chunk,
	onStatus transcribe.StatusCallback, onProgress transcribe.ProgressCallback) (*transcribe.Outcome, error) {
	return f.fn(ctx, jobID, chunks, onStatus, onProgress)
}

// fakeAnalyzer implements analysis.Executor and records the last call.
type fakeAnalyzer struct {
	result    *analysis.Result
	err       error
	gotParams analysis.Params
}

func (f *fakeAnalyzer) Run(ctx context.Context, jobID int64, transcript string, params analysis.Params) (*analysis.Result, error) {
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &analysis.Result{Summary: "summary"}, nil
}
