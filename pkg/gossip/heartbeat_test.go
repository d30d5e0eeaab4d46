package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatCompare(t *testing.T) {
	t.Helper()
	t.Parallel()

	tests := []struct {
		name     string
		a        Heartbeat
		b        Heartbeat
		expected int
	}{
		{
			name:     "equal",
			a:        Heartbeat{Generation: 1, Version: 5},
			b:        Heartbeat{Generation: 1, Version: 5},
			expected: 0,
		},
		{
			name:     "same generation older version",
			a:        Heartbeat{Generation: 1, Version: 4},
			b:        Heartbeat{Generation: 1, Version: 5},
			expected: -1,
		},
		{
			name:     "same generation newer version",
			a:        Heartbeat{Generation: 1, Version: 9},
			b:        Heartbeat{Generation: 1, Version: 5},
			expected: 1,
		},
		{
			name:     "newer generation beats any version",
			a:        Heartbeat{Generation: 2, Version: 1},
			b:        Heartbeat{Generation: 1, Version: 9},
			expected: 1,
		},
		{
			name:     "older generation loses to any version",
			a:        Heartbeat{Generation: 1, Version: 9},
			b:        Heartbeat{Generation: 2, Version: 1},
			expected: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Helper()
			t.Parallel()

			assert.Equal(t, tt.expected, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.expected, tt.b.Compare(tt.a))
			assert.Equal(t, tt.expected < 0, tt.a.Older(tt.b))
			assert.Equal(t, tt.expected > 0, tt.a.Newer(tt.b))
		})
	}
}
