package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCoordinatorStartsNotShuttingDown(t *testing.T) {
	c := New()
	assert.False(t, c.ShuttingDown())
}

func TestBeginFlipsState(t *testing.T) {
	c := New()
	c.Begin()
	assert.True(t, c.ShuttingDown())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() channel should be closed after Begin")
	}
}

func TestBeginIsIdempotent(t *testing.T) {
	c := New()
	c.Begin()
	assert.NotPanics(t, func() { c.Begin() })
	assert.True(t, c.ShuttingDown())
}
