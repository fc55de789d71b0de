package parallel

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(t *testing.T, workers int) *WorkerPool {
	t.Helper()
	pool, err := NewWorkerPool(workers)
	if err != nil {
		t.Fatalf("NewWorkerPool(%d) failed: %v", workers, err)
	}
	return pool
}

// TestWorkerPoolBasicOperations tests basic worker pool functionality
func TestWorkerPoolBasicOperations(t *testing.T) {
	pool := newTestPool(t, 4)

	var executed atomic.Bool
	success := pool.Submit(func() {
		executed.Store(true)
	})

	if !success {
		t.Error("Task submission failed")
	}

	pool.Close()

	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

// TestWorkerPoolConcurrentSubmissions tests concurrent task submissions
func TestWorkerPoolConcurrentSubmissions(t *testing.T) {
	pool := newTestPool(t, 10)

	numTasks := 100
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(func() {
				atomic.AddInt64(&counter, 1)
			})
		}()
	}

	wg.Wait()
	pool.Close()

	if counter != int64(numTasks) {
		t.Errorf("Expected counter %d, got %d", numTasks, counter)
	}
}

// TestWorkerPoolCloseRace validates that closing the pool while submitting
// tasks doesn't panic
func TestWorkerPoolCloseRace(t *testing.T) {
	numIterations := 100

	for iteration := 0; iteration < numIterations; iteration++ {
		pool := newTestPool(t, 4)

		var wg sync.WaitGroup
		numSubmitters := 10

		for i := 0; i < numSubmitters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					// Might fail if closed, which is fine
					pool.Submit(func() {
						time.Sleep(1 * time.Millisecond)
					})
				}
			}()
		}

		time.Sleep(5 * time.Millisecond)
		pool.Close()

		wg.Wait()
	}
}

// TestWorkerPoolSubmitAfterClose tests that submissions after close return false
func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := newTestPool(t, 4)

	success := pool.Submit(func() {
		time.Sleep(10 * time.Millisecond)
	})
	if !success {
		t.Error("Task submission before close should succeed")
	}

	pool.Close()

	success = pool.Submit(func() {
		t.Error("This task should never execute")
	})

	if success {
		t.Error("Task submission after close should return false")
	}
}

// TestWorkerPoolMultipleClose tests that closing multiple times is safe
func TestWorkerPoolMultipleClose(t *testing.T) {
	pool := newTestPool(t, 4)

	for i := 0; i < 10; i++ {
		pool.Submit(func() {
			time.Sleep(1 * time.Millisecond)
		})
	}

	pool.Close()
	pool.Close()
	pool.Close()
}

// TestWorkerPoolTaskExecution tests that all submitted tasks execute
func TestWorkerPoolTaskExecution(t *testing.T) {
	pool := newTestPool(t, 5)

	numTasks := 50
	executed := make([]bool, numTasks)
	var mu sync.Mutex

	for i := 0; i < numTasks; i++ {
		taskID := i
		pool.Submit(func() {
			mu.Lock()
			executed[taskID] = true
			mu.Unlock()
		})
	}

	pool.Close()

	for i, exec := range executed {
		if !exec {
			t.Errorf("Task %d was not executed", i)
		}
	}
}

// TestWorkerPoolWithPanic tests that panics in tasks don't crash the pool
func TestWorkerPoolWithPanic(t *testing.T) {
	pool := newTestPool(t, 4)

	var counter int64

	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			panic("intentional panic")
		})
	}

	for i := 0; i < 10; i++ {
		pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}

	pool.Close()

	if counter != 10 {
		t.Errorf("Expected counter 10, got %d", counter)
	}
}

// TestWorkerPoolTooManyWorkers tests the overflow guard
func TestWorkerPoolTooManyWorkers(t *testing.T) {
	_, err := NewWorkerPool(MaxWorkers + 1)
	if err == nil {
		t.Fatal("Expected error for worker count above MaxWorkers")
	}
}

// BenchmarkWorkerPoolThroughput benchmarks worker pool throughput
func BenchmarkWorkerPoolThroughput(b *testing.B) {
	pool, err := NewWorkerPool(10)
	if err != nil {
		b.Fatalf("NewWorkerPool failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(func() {})
	}

	pool.Close()
}
