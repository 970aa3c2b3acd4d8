package threading

import "sync"

// mailbox is one direction of a Bus.
type mailbox[T any] struct {
	mu      sync.Mutex
	pending []T
}

// put moves *batch into the queue. The caller's slice is reset; its backing
// array now belongs to the queue.
func (m *mailbox[T]) put(batch *[]T) {
	if len(*batch) == 0 {
		return
	}
	m.mu.Lock()
	m.putLocked(batch)
	m.mu.Unlock()
}

func (m *mailbox[T]) tryPut(batch *[]T) bool {
	if len(*batch) == 0 {
		return true
	}
	if !m.mu.TryLock() {
		return false
	}
	m.putLocked(batch)
	m.mu.Unlock()
	return true
}

func (m *mailbox[T]) putLocked(batch *[]T) {
	if len(m.pending) == 0 {
		m.pending = *batch
	} else {
		m.pending = append(m.pending, *batch...)
	}
	*batch = nil
}

func (m *mailbox[T]) tryTake(out *[]T) bool {
	if !m.mu.TryLock() {
		return false
	}
	if len(m.pending) > 0 {
		if len(*out) == 0 {
			*out = m.pending
		} else {
			*out = append(*out, m.pending...)
		}
		m.pending = nil
	}
	m.mu.Unlock()
	return true
}

// Bus carries ordered command batches between the simulation loop (engine)
// and the render loop (display). D flows engine -> display, E flows
// display -> engine. Each direction has its own lock.
//
// Producers may block briefly; consumers never do. A consume attempt that
// loses the lock returns false and the caller retries next iteration, so
// delivery is delayed by at most one cycle. Within a direction every command
// arrives exactly once and in order. There is no fairness guarantee under
// sustained contention.
type Bus[D, E any] struct {
	display mailbox[D]
	engine  mailbox[E]
}

func NewBus[D, E any]() *Bus[D, E] {
	return &Bus[D, E]{}
}

// Produce appends batch to the display-bound queue, blocking for the lock.
// *batch is emptied.
func (b *Bus[D, E]) Produce(batch *[]D) { b.display.put(batch) }

// AttemptProduce is Produce without blocking. On false *batch is untouched.
func (b *Bus[D, E]) AttemptProduce(batch *[]D) bool { return b.display.tryPut(batch) }

// AttemptConsume moves every pending display-bound command onto the end of
// *out. It returns false, leaving *out unchanged, if the queue is locked.
func (b *Bus[D, E]) AttemptConsume(out *[]D) bool { return b.display.tryTake(out) }

// ProduceReverse appends batch to the engine-bound queue.
func (b *Bus[D, E]) ProduceReverse(batch *[]E) { b.engine.put(batch) }

func (b *Bus[D, E]) AttemptProduceReverse(batch *[]E) bool { return b.engine.tryPut(batch) }

func (b *Bus[D, E]) AttemptConsumeReverse(out *[]E) bool { return b.engine.tryTake(out) }
