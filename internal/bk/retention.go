package bk

// RetentionQueue is a bounded FIFO. Pushing beyond capacity evicts the oldest
// items through the evict callback. Eviction failures are logged and never
// prevent the push.
type RetentionQueue[T any] struct {
	capacity int
	items    []T
	evict    func(T) error
	logger   Logger
}

// NewRetentionQueue creates a queue holding at most capacity items (minimum 1).
// evict may be nil when dropped items need no cleanup.
func NewRetentionQueue[T any](capacity int, logger Logger, evict func(T) error) *RetentionQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RetentionQueue[T]{
		capacity: capacity,
		evict:    evict,
		logger:   logger,
	}
}

// Push appends item and evicts the oldest items while the queue is over
// capacity. It returns the evicted items, oldest first.
func (q *RetentionQueue[T]) Push(item T) []T {
	q.items = append(q.items, item)

	var evicted []T
	for len(q.items) > q.capacity {
		oldest := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		evicted = append(evicted, oldest)

		if q.evict == nil {
			continue
		}
		if err := q.evict(oldest); err != nil {
			q.logger.Error("evicting retained item", "error", err)
		}
	}
	return evicted
}

// Last returns the most recently pushed item still in the queue.
func (q *RetentionQueue[T]) Last() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[len(q.items)-1], true
}

// Len returns the number of items in the queue.
func (q *RetentionQueue[T]) Len() int { return len(q.items) }

// Capacity returns the maximum number of items the queue retains.
func (q *RetentionQueue[T]) Capacity() int { return q.capacity }

// Items returns a copy of the queued items, oldest first.
func (q *RetentionQueue[T]) Items() []T {
	return append([]T(nil), q.items...)
}
