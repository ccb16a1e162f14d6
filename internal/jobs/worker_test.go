package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockProcessor is a mock implementation of Processor
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockIngestJobRepository is a mock implementation of IngestJobRepository
type MockIngestJobRepository struct {
	mock.Mock
}

func (m *MockIngestJobRepository) GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IngestJob), args.Error(1)
}

func (m *MockIngestJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error {
	args := m.Called(ctx, jobID, status, errMsg)
	return args.Error(0)
}

func (m *MockIngestJobRepository) IncrementRetries(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// MockIngestionService is a mock implementation of IngestionService
type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) IngestDocument(ctx context.Context, objectKey, category string) (int, error) {
	args := m.Called(ctx, objectKey, category)
	return args.Int(0), args.Error(1)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestIngestWorker_ProcessJobs_NoPendingJobs tests when there are no pending jobs
func TestIngestWorker_ProcessJobs_NoPendingJobs(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestionService)

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{}, nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertNotCalled(t, "IngestDocument", mock.Anything, mock.Anything, mock.Anything)
}

// TestIngestWorker_ProcessJobs_Success tests successful job processing
func TestIngestWorker_ProcessJobs_Success(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestionService)

	job := &domain.IngestJob{
		ID:        "job-1",
		ObjectKey: "prospectus/uct-2026.txt",
		Category:  "careers",
		Status:    domain.IngestJobStatusPending,
		Retries:   0,
	}

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockService.On("IngestDocument", mock.Anything, "prospectus/uct-2026.txt", "careers").Return(12, nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusCompleted, "").Return(nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertExpectations(t)
}

// TestIngestWorker_ProcessJobs_FailureWithRetry tests job failure with retry
func TestIngestWorker_ProcessJobs_FailureWithRetry(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestionService)

	job := &domain.IngestJob{
		ID:        "job-1",
		ObjectKey: "prospectus/uct-2026.txt",
		Status:    domain.IngestJobStatusPending,
		Retries:   0,
	}

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockService.On("IngestDocument", mock.Anything, "prospectus/uct-2026.txt", "").Return(0, errors.New("fetch failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusPending, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertExpectations(t)
}

// TestIngestWorker_ProcessJobs_MaxRetriesExceeded tests job failure after max retries
func TestIngestWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestionService)

	job := &domain.IngestJob{
		ID:        "job-1",
		ObjectKey: "prospectus/uct-2026.txt",
		Status:    domain.IngestJobStatusPending,
		Retries:   2, // Already retried twice
	}

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockService.On("IngestDocument", mock.Anything, "prospectus/uct-2026.txt", "").Return(0, errors.New("fetch failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertExpectations(t)
}

// TestIngestWorker_ProcessJobs_RepositoryError tests repository error handling
func TestIngestWorker_ProcessJobs_RepositoryError(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestionService)

	mockRepo.On("GetPendingJobs", mock.Anything).Return(nil, errors.New("database error"))

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch pending jobs")
	mockRepo.AssertExpectations(t)
}
