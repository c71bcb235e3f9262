package norm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateEU(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"slash separated", "01/02/2025", "2025-02-01"},
		{"dash with short year", "31-12-24", "2024-12-31"},
		{"dot separated", "ordered on 5.3.2024 ok", "2024-03-05"},
		{"embedded in sentence", "it was 59.99 dollars on 10/05/2025.", "2025-05-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDateEU(tt.raw)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestParseDateEUInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"month 13", "31/13/2025"},
		{"feb 30", "30.02.2023"},
		{"no date", "no date in here"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ParseDateEU(tt.raw))
		})
	}
}
