package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"roommap/server/internal/models"
)

func batch(ids ...string) []*models.PropertyRecord {
	out := make([]*models.PropertyRecord, len(ids))
	for i, id := range ids {
		out[i] = &models.PropertyRecord{ID: models.FlexString(id)}
	}
	return out
}

func TestNewListingQueue(t *testing.T) {
	logger := logrus.New()
	q := NewListingQueue(10, logger)
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())

	q = NewListingQueue(0, nil)
	assert.Equal(t, 1, q.maxSize)
}

func TestListingQueue_Push(t *testing.T) {
	logger := logrus.New()
	q := NewListingQueue(2, logger)

	// Test successful push
	err := q.Push(batch("1"))
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	// Test queue full
	assert.NoError(t, q.Push(batch("2")))
	err = q.Push(batch("3"))
	assert.Equal(t, ErrQueueFull, err)

	// Test closed queue
	q.Close()
	err = q.Push(batch("4"))
	assert.Equal(t, ErrQueueClosed, err)
}

func TestListingQueue_Subscribe(t *testing.T) {
	logger := logrus.New()
	q := NewListingQueue(10, logger)
	defer q.Close()

	var processed []*models.PropertyRecord
	var mu sync.Mutex

	q.Subscribe(func(records []*models.PropertyRecord) error {
		mu.Lock()
		processed = append(processed, records...)
		mu.Unlock()
		return nil
	})

	q.Start(1)

	err := q.Push(batch("1", "2"))
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, models.FlexString("1"), processed[0].ID)
	assert.Equal(t, models.FlexString("2"), processed[1].ID)
	mu.Unlock()
}

func TestListingQueue_Close(t *testing.T) {
	logger := logrus.New()
	q := NewListingQueue(10, logger)
	q.Start(2)

	// Test first close
	err := q.Close()
	assert.NoError(t, err)
	assert.True(t, q.IsClosed())

	// Test second close (should be no-op)
	err = q.Close()
	assert.NoError(t, err)

	// Starting a closed queue does nothing
	q.Start(1)
}

func TestListingQueue_ProcessBatch(t *testing.T) {
	logger := logrus.New()
	q := NewListingQueue(10, logger)
	defer q.Close()

	var wg sync.WaitGroup
	processedBatches := 0
	var mu sync.Mutex

	// Add multiple handlers, one of them failing
	for i := 0; i < 3; i++ {
		wg.Add(1)
		fail := i == 1
		q.Subscribe(func(records []*models.PropertyRecord) error {
			mu.Lock()
			processedBatches++
			mu.Unlock()
			wg.Done()
			if fail {
				return errors.New("handler failed")
			}
			return nil
		})
	}

	q.Start(1)

	err := q.Push(batch("1"))
	assert.NoError(t, err)

	wg.Wait()

	mu.Lock()
	assert.Equal(t, 3, processedBatches)
	mu.Unlock()
}

func TestListingQueue_WorkersShareBatches(t *testing.T) {
	q := NewListingQueue(50, nil)
	defer q.Close()

	var mu sync.Mutex
	seen := map[models.FlexString]int{}
	q.Subscribe(func(records []*models.PropertyRecord) error {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range records {
			seen[r.ID]++
		}
		return nil
	})
	q.Start(4)

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		assert.NoError(t, q.Push(batch(id)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(ids)
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	for _, id := range ids {
		assert.Equal(t, 1, seen[models.FlexString(id)], "batch %s handled once", id)
	}
	mu.Unlock()
}
