package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"roommap/server/config"
	"roommap/server/internal/models"
	"roommap/server/internal/queue"
)

// MockDB is a mock implementation of Transactor
type MockDB struct {
	mock.Mock
}

func (m *MockDB) Transaction(fc func(*gorm.DB) error) error {
	args := m.Called(fc)
	return args.Error(0)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 2
	cfg.BatchProcessing.MaxRetries = 3
	cfg.BatchProcessing.RetryDelay = time.Millisecond
	return cfg
}

func testBatch() []*models.PropertyRecord {
	return []*models.PropertyRecord{
		{ID: "1", Address: "서울시 성북구 안암동 101호 3층"},
		{ID: "2", Address: "서울시 성북구 안암동 102호 3층"},
	}
}

func TestNewBatchProcessor(t *testing.T) {
	// Setup
	mockDB := &MockDB{}
	mockQueue := queue.NewListingQueue(10, nil)
	cfg := testConfig()
	logger := logrus.New()

	// Test
	processor := NewBatchProcessor(mockDB, mockQueue, cfg, logger)

	// Assert
	assert.NotNil(t, processor)
	assert.Equal(t, mockDB, processor.db)
	assert.Equal(t, mockQueue, processor.queue)
	assert.Equal(t, cfg, processor.config)
	assert.Equal(t, logger, processor.logger)
}

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	mockDB := &MockDB{}
	processor := NewBatchProcessor(mockDB, queue.NewListingQueue(10, nil), testConfig(), logrus.New())

	var committed [][]*models.PropertyRecord
	processor.OnCommitted(func(batch []*models.PropertyRecord) {
		committed = append(committed, batch)
	})

	// Test successful processing
	mockDB.On("Transaction", mock.Anything).Return(nil).Once()
	err := processor.processBatch(testBatch())
	assert.NoError(t, err)
	assert.Len(t, committed, 1)

	// Test retry on failure
	mockDB.On("Transaction", mock.Anything).Return(errors.New("db error")).Times(4)
	err = processor.processBatch(testBatch())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch after 4 attempts")
	assert.Len(t, committed, 1, "failed batches do not trigger a reload")
	mockDB.AssertExpectations(t)
}

func TestBatchProcessor_RetryThenSucceed(t *testing.T) {
	mockDB := &MockDB{}
	processor := NewBatchProcessor(mockDB, queue.NewListingQueue(10, nil), testConfig(), nil)

	mockDB.On("Transaction", mock.Anything).Return(sqlite3.Error{Code: sqlite3.ErrBusy}).Twice()
	mockDB.On("Transaction", mock.Anything).Return(nil).Once()

	assert.NoError(t, processor.processBatch(testBatch()))
	mockDB.AssertNumberOfCalls(t, "Transaction", 3)
}

func TestBatchProcessor_NoRetryOnConstraint(t *testing.T) {
	mockDB := &MockDB{}
	processor := NewBatchProcessor(mockDB, queue.NewListingQueue(10, nil), testConfig(), nil)

	mockDB.On("Transaction", mock.Anything).Return(sqlite3.Error{Code: sqlite3.ErrConstraint})

	err := processor.processBatch(testBatch())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 attempts")
	mockDB.AssertNumberOfCalls(t, "Transaction", 1)
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	mockDB := &MockDB{}
	processor := NewBatchProcessor(mockDB, queue.NewListingQueue(10, nil), testConfig(), nil)

	assert.NoError(t, processor.processBatch(nil))
	mockDB.AssertNotCalled(t, "Transaction", mock.Anything)
}

func TestBatchProcessor_StopCancelsRetry(t *testing.T) {
	mockDB := &MockDB{}
	cfg := testConfig()
	cfg.BatchProcessing.RetryDelay = time.Hour
	processor := NewBatchProcessor(mockDB, queue.NewListingQueue(10, nil), cfg, nil)
	mockDB.On("Transaction", mock.Anything).Return(errors.New("db error"))

	done := make(chan error, 1)
	go func() { done <- processor.processBatch(testBatch()) }()

	time.Sleep(20 * time.Millisecond)
	processor.Stop()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "cancelled")
	case <-time.After(time.Second):
		t.Fatal("retry wait was not cancelled")
	}
}

func TestBatchProcessor_StartStop(t *testing.T) {
	// Setup
	mockDB := &MockDB{}
	mockQueue := queue.NewListingQueue(10, nil)
	processor := NewBatchProcessor(mockDB, mockQueue, testConfig(), logrus.New())

	// Test Start
	processor.Start()
	processor.Start()

	// Test Stop
	processor.Stop()
	assert.True(t, mockQueue.IsClosed())
}
