package minibatch

import (
	"encoding/json"
	"sync"

	"github.com/karlseguin/typed"
)

// BatchContext is a concurrency safe key/value store attached to job and step
// executions. Step contexts are persisted by the Repository, so values should
// be JSON friendly.
type BatchContext struct {
	mu   sync.RWMutex
	data typed.Typed
}

// NewBatchContext create an empty BatchContext
func NewBatchContext() *BatchContext {
	return &BatchContext{data: typed.Typed{}}
}

func (ctx *BatchContext) Put(key string, value interface{}) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.data[key] = value
}

func (ctx *BatchContext) Get(key string) interface{} {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.data[key]
}

func (ctx *BatchContext) Exists(key string) bool {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	_, ok := ctx.data[key]
	return ok
}

func (ctx *BatchContext) Remove(key string) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	delete(ctx.data, key)
}

// GetInt64 returns the value of key as int64. Values decoded from JSON arrive
// as float64 and are converted.
func (ctx *BatchContext) GetInt64(key string) (int64, bool) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	switch v := ctx.data[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	i, ok := ctx.data.IntIf(key)
	return int64(i), ok
}

func (ctx *BatchContext) GetString(key string) (string, bool) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.data.StringIf(key)
}

// Merge copies all entries of other into ctx.
func (ctx *BatchContext) Merge(other *BatchContext) {
	if other == nil || other == ctx {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for k, v := range other.data {
		ctx.data[k] = v
	}
}

func (ctx *BatchContext) Clone() *BatchContext {
	clone := NewBatchContext()
	clone.Merge(ctx)
	return clone
}

func (ctx *BatchContext) MarshalJSON() ([]byte, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return json.Marshal(map[string]interface{}(ctx.data))
}

func (ctx *BatchContext) UnmarshalJSON(b []byte) error {
	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.data = typed.New(m)
	return nil
}
