package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestVersionedName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dev", "Collect dev"},
		{"", "Collect dev"},
		{"1.4.0", "Collect v1.4.0"},
		{"v1.4.0", "Collect v1.4.0"},
		{"1.4.0-beta-2", "Collect v1.4.0\nbeta-2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, versionedName(tt.in))
		})
	}
}
