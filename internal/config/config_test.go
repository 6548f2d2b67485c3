package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTags(t *testing.T) {
	assert.Nil(t, SplitTags(""))
	assert.Equal(t, []string{"env:prod"}, SplitTags("env:prod"))
	assert.Equal(t, []string{"env:prod", "host:web01"}, SplitTags("env:prod,host:web01"))

	// Whitespace and empty elements are dropped
	assert.Equal(t, []string{"env:prod", "host:web01"}, SplitTags(" env:prod ,, host:web01 "))
}
