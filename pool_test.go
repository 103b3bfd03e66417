package minibatch

import (
	"context"
	"errors"
	"testing"

	"github.com/bmizerany/assert"
)

func TestTaskPool(t *testing.T) {
	pool := newTaskPool(2)
	ok := pool.Submit(context.Background(), func() (interface{}, error) { return 42, nil })
	failed := pool.Submit(context.Background(), func() (interface{}, error) { return nil, errors.New("boom") })
	panicked := pool.Submit(context.Background(), func() (interface{}, error) { panic("bad task") })

	v, err := ok.Get()
	assert.Equal(t, nil, err)
	assert.Equal(t, 42, v)

	_, err = failed.Get()
	assert.Equal(t, "boom", err.Error())

	_, err = panicked.Get()
	assert.Equal(t, ErrCodeGeneral, ErrorCode(err))
	<-panicked.Done()
}
