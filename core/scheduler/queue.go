package scheduler

import (
	"container/heap"
	"sync"

	"mesh-orchestrator/core/models"
)

// RunQueue is a FIFO priority queue of submitted runs. A run ID is held at
// most once.
type RunQueue struct {
	runs   []*QueuedRun
	queued map[string]struct{}
	mu     sync.Mutex
}

// QueuedRun wraps a run with its heap position
type QueuedRun struct {
	Run   *models.Run
	Index int // For heap.Interface
}

// NewRunQueue creates a new run queue
func NewRunQueue() *RunQueue {
	rq := &RunQueue{
		runs:   make([]*QueuedRun, 0),
		queued: make(map[string]struct{}),
	}
	heap.Init(rq)
	return rq
}

// Enqueue adds a run to the queue. It reports false when the run is already
// queued.
func (rq *RunQueue) Enqueue(run *models.Run) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if _, ok := rq.queued[run.ID]; ok {
		return false
	}
	rq.queued[run.ID] = struct{}{}
	heap.Push(rq, &QueuedRun{Run: run})
	return true
}

// PopRun removes and returns the oldest run
func (rq *RunQueue) PopRun() *models.Run {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.Len() == 0 {
		return nil
	}

	item := heap.Pop(rq).(*QueuedRun)
	delete(rq.queued, item.Run.ID)
	return item.Run
}

// Size returns the number of queued runs
func (rq *RunQueue) Size() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.Len()
}

// Len implements heap.Interface
func (rq *RunQueue) Len() int {
	return len(rq.runs)
}

// Less orders runs by submission time, then ID
func (rq *RunQueue) Less(i, j int) bool {
	a, b := rq.runs[i].Run, rq.runs[j].Run
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Swap implements heap.Interface
func (rq *RunQueue) Swap(i, j int) {
	rq.runs[i], rq.runs[j] = rq.runs[j], rq.runs[i]
	rq.runs[i].Index = i
	rq.runs[j].Index = j
}

// Push implements heap.Interface
func (rq *RunQueue) Push(x interface{}) {
	n := len(rq.runs)
	item := x.(*QueuedRun)
	item.Index = n
	rq.runs = append(rq.runs, item)
}

// Pop implements heap.Interface
func (rq *RunQueue) Pop() interface{} {
	old := rq.runs
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	rq.runs = old[0 : n-1]
	return item
}
