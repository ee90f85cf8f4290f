package media

import (
	"sync/atomic"
)

// PoolStats reports buffer reuse for a pool.
type PoolStats struct {
	Allocated int64 `json:"allocated"`
	Reused    int64 `json:"reused"`
	Discarded int64 `json:"discarded"`
	Free      int   `json:"free"`
}

// freeList recycles fixed-shape buffers. Half the capacity is allocated up
// front; buffers returned to a full list are left to the GC.
type freeList[T any] struct {
	free  chan T
	alloc func() T

	allocated atomic.Int64
	reused    atomic.Int64
	discarded atomic.Int64
}

func newFreeList[T any](size int, alloc func() T) *freeList[T] {
	if size < 1 {
		size = 1
	}
	fl := &freeList[T]{
		free:  make(chan T, size),
		alloc: alloc,
	}
	for i := 0; i < size/2; i++ {
		fl.allocated.Add(1)
		fl.free <- alloc()
	}
	return fl
}

func (fl *freeList[T]) get() T {
	select {
	case v := <-fl.free:
		fl.reused.Add(1)
		return v
	default:
		fl.allocated.Add(1)
		return fl.alloc()
	}
}

func (fl *freeList[T]) put(v T) {
	select {
	case fl.free <- v:
	default:
		fl.discarded.Add(1)
	}
}

func (fl *freeList[T]) stats() PoolStats {
	return PoolStats{
		Allocated: fl.allocated.Load(),
		Reused:    fl.reused.Load(),
		Discarded: fl.discarded.Load(),
		Free:      len(fl.free),
	}
}
