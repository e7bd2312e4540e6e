package utils

import (
	"fmt"
	"sync"
)

// Broadcast copies every input value to all subscribed outputs.
// Slow subscribers miss values instead of stalling the input.
type Broadcast[T any] struct {
	input    <-chan T
	inputCap int

	mutex   sync.Mutex
	closed  bool
	nextID  int64
	outputs map[int64]chan T
	dropped map[int64]uint64
	done    chan struct{}
}

func NewBroadcast[T any](input <-chan T) *Broadcast[T] {
	b := &Broadcast[T]{
		input:    input,
		inputCap: cap(input),
		outputs:  make(map[int64]chan T),
		dropped:  make(map[int64]uint64),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcast[T]) run() {
	defer close(b.done)
	for v := range b.input {
		b.mutex.Lock()
		for id, o := range b.outputs {
			select {
			case o <- v:
			default:
				b.dropped[id]++
			}
		}
		b.mutex.Unlock()
	}

	b.mutex.Lock()
	b.closed = true
	for id, o := range b.outputs {
		close(o)
		delete(b.outputs, id)
	}
	b.mutex.Unlock()
}

// Subscribe creates new output channel and its ID for later unsubscribing.
// Output channel has size of input channel, at least 1.
func (b *Broadcast[T]) Subscribe() (int64, <-chan T, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return 0, nil, fmt.Errorf("input channel is closed")
	}

	ocap := b.inputCap
	if ocap == 0 {
		ocap = 1
	}
	id := b.nextID
	b.nextID++
	b.outputs[id] = make(chan T, ocap)
	return id, b.outputs[id], nil
}

// Unsubscribe closes and removes output channel with given ID.
func (b *Broadcast[T]) Unsubscribe(id int64) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	c, ok := b.outputs[id]
	if !ok {
		return fmt.Errorf("output id %d not found", id)
	}
	close(c)
	delete(b.outputs, id)
	delete(b.dropped, id)
	return nil
}

// Dropped returns number of values the output missed.
func (b *Broadcast[T]) Dropped(id int64) uint64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.dropped[id]
}

// Done is closed once input is drained and all outputs are closed.
func (b *Broadcast[T]) Done() <-chan struct{} {
	return b.done
}
