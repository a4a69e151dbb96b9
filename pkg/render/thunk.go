package render

import "sync"

// Thunk wraps a zero-argument panel producer. The pipeline forces it
// exactly once, at Rendering time, which bounds peak memory to one
// in-flight figure per worker. The produced value is handed off to the
// caller and not retained, so a rendered figure becomes collectable as
// soon as its adapter is done with it.
type Thunk struct {
	once    sync.Once
	produce func() interface{}
}

// NewThunk wraps a producer for lazy evaluation.
func NewThunk(produce func() interface{}) *Thunk {
	return &Thunk{produce: produce}
}

// Force invokes the producer on the first call and returns its value.
// The producer is discarded afterwards; later calls return nil.
func (t *Thunk) Force() interface{} {
	var value interface{}
	t.once.Do(func() {
		value = t.produce()
		t.produce = nil
	})
	return value
}
