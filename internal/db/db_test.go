package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		password string
		regtime  int64
		want     string
	}{
		{"hunter2", 1234567890, "ae054d191181fb5b011c2377aed2453b"},
		{"swordfish", 946684800, "8f81e7e3297c58848b9587ac7b831e65"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HashPassword(tt.password, tt.regtime))
	}

	// Same password, different registration time: different hash.
	assert.NotEqual(t,
		HashPassword("hunter2", 1234567890),
		HashPassword("hunter2", 1234567891))
}
