package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameKey(t *testing.T) {
	assert.Equal(t, "iPhone 15", NormalizeName("  iPhone   15 "))
	assert.Equal(t, "iphone 15", NameKey("  iPhone   15 "))
	assert.Equal(t, NameKey("IPHONE 15"), NameKey("iphone\t15"))
	assert.Empty(t, NameKey("   "))
}
