package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/service"
	"github.com/voxnote/voxnote-api/internal/store"
)

// mockJobService implements service.JobService with overridable fields.
type mockJobService struct {
	SubmitFn      func(ctx context.Context, params service.SubmitParams) (*domain.Job, error)
	GetStatusFn   func(ctx context.Context, id int64, scope store.AuthScope) (*service.JobStatus, error)
	ListFn        func(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error)
	RetryFn       func(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error)
	ListRecordsFn func(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error)
}

func (m *mockJobService) Submit(ctx context.Context, params service.SubmitParams) (*domain.Job, error) {
	return m.SubmitFn(ctx, params)
}

func (m *mockJobService) GetStatus(ctx context.Context, id int64, scope store.AuthScope) (*service.JobStatus, error) {
	return m.GetStatusFn(ctx, id, scope)
}

func (m *mockJobService) List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	return m.ListFn(ctx, filter)
}

func (m *mockJobService) Retry(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error) {
	return m.RetryFn(ctx, id, scope)
}

func (m *mockJobService) ListRecords(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error) {
	return m.ListRecordsFn(ctx, companyID, limit)
}

func testServer(t *testing.T, svc service.JobService) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewRouter(NewJobHandler(svc)))
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, server *httptest.Server, method, path string, companyID uuid.UUID, body any) *http.Response {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, payload)
	require.NoError(t, err)
	if companyID != uuid.Nil {
		req.Header.Set("X-Company-ID", companyID.String())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func sampleJob(id int64, companyID uuid.UUID) *domain.Job {
	return &domain.Job{
		ID:          id,
		FileID:      "file-abc",
		CompanyID:   companyID,
		UserID:      uuid.New(),
		JobType:     domain.JobTypeTranscription,
		Status:      domain.JobStatusPending,
		MaxAttempts: 3,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSubmitJob(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()

	t.Run("accepts a valid submission", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			SubmitFn: func(ctx context.Context, params service.SubmitParams) (*domain.Job, error) {
				assert.Equal(t, "file-abc", params.FileID)
				assert.Equal(t, companyID, params.CompanyID)
				assert.Equal(t, domain.JobTypeTranscription, params.JobType)
				return sampleJob(7, companyID), nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs", companyID,
			map[string]string{"file_id": "file-abc", "input_path": "/audio/a.m4a"})
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var got JobResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, int64(7), got.ID)
		assert.Equal(t, "pending", got.Status)
	})

	t.Run("prompt passes through to the service", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			SubmitFn: func(ctx context.Context, params service.SubmitParams) (*domain.Job, error) {
				assert.Equal(t, "list open questions", params.Prompt)
				return sampleJob(2, companyID), nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs", companyID,
			map[string]string{"file_id": "file-abc", "prompt": "list open questions"})
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("empty job type defaults to transcription", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			SubmitFn: func(ctx context.Context, params service.SubmitParams) (*domain.Job, error) {
				assert.Equal(t, domain.JobTypeTranscription, params.JobType)
				return sampleJob(1, companyID), nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs", companyID,
			map[string]string{"file_id": "file-abc"})
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("missing file ID is rejected", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			SubmitFn: func(ctx context.Context, params service.SubmitParams) (*domain.Job, error) {
				t.Error("an invalid request must not reach the service")
				return nil, nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs", companyID,
			map[string]string{"input_path": "/audio/a.m4a"})
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid entity from the service maps to bad request", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			SubmitFn: func(ctx context.Context, params service.SubmitParams) (*domain.Job, error) {
				return nil, fmt.Errorf("%w: bad job type", store.ErrInvalidEntity)
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs", companyID,
			map[string]string{"file_id": "file-abc", "job_type": "nonsense"})
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing company header is unauthorized", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{}
		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs", uuid.Nil,
			map[string]string{"file_id": "file-abc"})
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()

	t.Run("returns the status snapshot", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			GetStatusFn: func(ctx context.Context, id int64, scope store.AuthScope) (*service.JobStatus, error) {
				assert.Equal(t, int64(42), id)
				assert.Equal(t, companyID, scope.CompanyID)
				return &service.JobStatus{
					Job: sampleJob(42, companyID),
					ChunkCounts: map[domain.ChunkStatus]int{
						domain.ChunkStatusCompleted: 3,
					},
				}, nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodGet, "/api/jobs/42", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got service.JobStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, int64(42), got.Job.ID)
		assert.Equal(t, 3, got.ChunkCounts[domain.ChunkStatusCompleted])
	})

	t.Run("unknown job is not found", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			GetStatusFn: func(ctx context.Context, id int64, scope store.AuthScope) (*service.JobStatus, error) {
				return nil, store.ErrJobNotFound
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodGet, "/api/jobs/999", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("non-numeric ID is rejected", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			GetStatusFn: func(ctx context.Context, id int64, scope store.AuthScope) (*service.JobStatus, error) {
				t.Error("a malformed ID must not reach the service")
				return nil, nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodGet, "/api/jobs/abc", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()

	t.Run("passes status and limit filters through", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			ListFn: func(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
				require.NotNil(t, filter.Status)
				assert.Equal(t, domain.JobStatusFailed, *filter.Status)
				assert.Equal(t, 10, filter.Limit)
				return []*domain.Job{sampleJob(1, companyID), sampleJob(2, companyID)}, nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodGet, "/api/jobs?status=failed&limit=10", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got []JobResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Len(t, got, 2)
	})

	t.Run("negative limit is rejected", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{}
		resp := doRequest(t, testServer(t, svc), http.MethodGet, "/api/jobs?limit=-1", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRetryJob(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()

	t.Run("accepts a retry of a failed job", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			RetryFn: func(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error) {
				job := sampleJob(id, companyID)
				job.Status = domain.JobStatusPending
				job.Attempts = 1
				return job, nil
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs/8/retry", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("non-failed job conflicts", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			RetryFn: func(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error) {
				return nil, store.ErrConflict
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs/8/retry", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown job is not found", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			RetryFn: func(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error) {
				return nil, store.ErrJobNotFound
			},
		}

		resp := doRequest(t, testServer(t, svc), http.MethodPost, "/api/jobs/8/retry", companyID, nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestListRecords(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()

	svc := &mockJobService{
		ListRecordsFn: func(ctx context.Context, gotCompany uuid.UUID, limit int) ([]*domain.ProcessedRecord, error) {
			assert.Equal(t, companyID, gotCompany)
			assert.Equal(t, 5, limit)
			return []*domain.ProcessedRecord{
				{ID: uuid.New(), JobID: 1, CompanyID: companyID, Transcript: "hello", QualityStatus: domain.QualityStatusComplete},
			}, nil
		},
	}

	resp := doRequest(t, testServer(t, svc), http.MethodGet, "/api/records?limit=5", companyID, nil)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []*domain.ProcessedRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Transcript)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	resp := doRequest(t, testServer(t, &mockJobService{}), http.MethodGet, "/healthz", uuid.Nil, nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
