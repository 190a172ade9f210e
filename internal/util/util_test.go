package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundup64(t *testing.T) {
	assert.Equal(t, int64(0), Roundup64(0, 10))
	assert.Equal(t, int64(10), Roundup64(1, 10))
	assert.Equal(t, int64(10), Roundup64(10, 10))
	assert.Equal(t, int64(20), Roundup64(11, 10))
	assert.Equal(t, int64(7), Roundup64(7, 0))
}
