package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopEmpty(t *testing.T) {
	q := NewPriority[string]()
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestHigherPriorityFirst(t *testing.T) {
	q := NewPriority[string]()
	q.Push("low", 1)
	q.Push("high", 10)
	q.Push("mid", 5)

	var got []string
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, got)
}

func TestFIFOAmongEqualPriorities(t *testing.T) {
	q := NewPriority[int]()
	for i := 0; i < 100; i++ {
		q.Push(i, 0)
	}
	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestLen(t *testing.T) {
	q := NewPriority[string]()
	assert.Equal(t, 0, q.Len())
	q.Push("a", 0)
	q.Push("b", 0)
	assert.Equal(t, 2, q.Len())
	q.Pop()
	assert.Equal(t, 1, q.Len())
}
