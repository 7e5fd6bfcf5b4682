package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceMonitorUsage(t *testing.T) {
	rm := NewResourceMonitor()
	usage := rm.Usage()
	require.NotNil(t, usage)

	assert.Greater(t, usage.GoroutineCount, 0, "a running process has goroutines")
	assert.GreaterOrEqual(t, usage.UptimeSeconds, 0.0)
	assert.Positive(t, usage.MemoryRSS, "resident set should be nonzero")
}

func TestResourceMonitorRepeatedSnapshots(t *testing.T) {
	rm := NewResourceMonitor()

	first := rm.Usage()
	grow := make([]byte, 8<<20)
	for i := range grow {
		grow[i] = byte(i)
	}
	second := rm.Usage()

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.GreaterOrEqual(t, second.UptimeSeconds, first.UptimeSeconds)
	_ = grow
}
