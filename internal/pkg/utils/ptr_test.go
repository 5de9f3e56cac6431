package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtrAndDeref(t *testing.T) {
	p := Ptr(42)
	assert.Equal(t, 42, *p)
	assert.Equal(t, 42, Deref(p))

	var nilStr *string
	assert.Equal(t, "", Deref(nilStr))
}
