package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff_ExponentialGrowth(t *testing.T) {
	base := 30 * time.Second

	assert.Equal(t, 30*time.Second, nextBackoff(0, base, 0, 0))
	assert.Equal(t, time.Minute, nextBackoff(1, base, 0, 0))
	assert.Equal(t, 2*time.Minute, nextBackoff(2, base, 0, 0))
	assert.Equal(t, 4*time.Minute, nextBackoff(3, base, 0, 0))
}

func TestNextBackoff_Cap(t *testing.T) {
	d := nextBackoff(10, 30*time.Second, 15*time.Minute, 0)
	assert.Equal(t, 15*time.Minute, d)
}

func TestNextBackoff_LargeAttemptsDoNotOverflow(t *testing.T) {
	d := nextBackoff(1000, 30*time.Second, 15*time.Minute, 0)
	assert.Equal(t, 15*time.Minute, d)
}

func TestNextBackoff_JitterBounds(t *testing.T) {
	base := time.Minute
	for i := 0; i < 100; i++ {
		d := nextBackoff(0, base, 0, 0.2)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+time.Duration(0.2*float64(base)))
	}
}

func TestNextBackoff_ZeroBaseDefaults(t *testing.T) {
	d := nextBackoff(0, 0, 0, 0)
	assert.Equal(t, time.Second, d)
}
