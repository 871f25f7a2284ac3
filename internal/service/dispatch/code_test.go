package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerate_DecimalDigits tests code shape across lengths
func TestGenerate_DecimalDigits(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		wantLength int
	}{
		{name: "default on zero", length: 0, wantLength: 4},
		{name: "default on negative", length: -3, wantLength: 4},
		{name: "four digits", length: 4, wantLength: 4},
		{name: "six digits", length: 6, wantLength: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewCodeGenerator(tt.length)
			for i := 0; i < 20; i++ {
				code, err := g.Generate()
				require.NoError(t, err)
				require.Len(t, code, tt.wantLength)
				for _, r := range code {
					assert.True(t, r >= '0' && r <= '9', "code %q contains non-digit %q", code, r)
				}
			}
		})
	}
}

// TestGenerate_NotConstant tests that the generator is not stuck on a
// single value
func TestGenerate_NotConstant(t *testing.T) {
	g := NewCodeGenerator(4)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}
