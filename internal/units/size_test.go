package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"4096", 4096},
		{"100B", 100},
		{"4K", 4096},
		{"4k", 4096},
		{"1M", 1048576},
		{"10M", 10485760},
		{"1G", 1073741824},
		{"1T", 1099511627776},
		{"1.5G", 1610612736},
		{"0.5M", 524288},
		{" 64K ", 65536},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSizeErrors(t *testing.T) {
	for _, input := range []string{"", "abc", "K", "notanumber G", "-1", "-1.5M"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSize(input)
			assert.Error(t, err)
		})
	}
}
