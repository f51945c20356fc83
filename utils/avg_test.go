package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvgVal(t *testing.T) {
	a := NewAvgVal(0.5)
	assert.Equal(t, 0.0, a.Val())
	a.Add(10)
	assert.Equal(t, 10.0, a.Val())
	a.Add(20)
	assert.Equal(t, 15.0, a.Val())
	a.Add(15)
	assert.Equal(t, 15.0, a.Val())

	var z AvgVal
	z.Add(100)
	z.Add(0)
	assert.InDelta(t, 90.0, z.Val(), 1e-9)
}
