package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct{ calls []time.Duration }

func (r *recordingSleep) sleep(d time.Duration) { r.calls = append(r.calls, d) }

func TestWindowRecordAndCooldown(t *testing.T) {
	rs := &recordingSleep{}
	w := NewWindow(WindowOpts{Quota: 2, Cooldown: time.Minute}, rs.sleep)

	assert.False(t, w.Record())
	assert.True(t, w.Record())
	assert.Equal(t, 2, w.Count())

	w.Cooldown()
	require.Equal(t, []time.Duration{time.Minute}, rs.calls)
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, 1, w.Cooldowns())

	assert.False(t, w.Record())
}

func TestWindowReset(t *testing.T) {
	w := NewWindow(WindowOpts{Quota: 1}, func(time.Duration) { t.Fatal("reset must not sleep") })
	assert.True(t, w.Record())
	w.Reset()
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, 0, w.Cooldowns())
}

func TestWindowDefaults(t *testing.T) {
	w := NewWindow(WindowOpts{Cooldown: -time.Second}, nil)
	assert.Equal(t, DefaultQuota, w.Opts().Quota)
	assert.Equal(t, DefaultCooldown, w.Opts().Cooldown)
	assert.Equal(t, time.Hour+time.Second, DefaultCooldown)
}

func TestWindowQuotaOnlyKeepsDefaultCooldown(t *testing.T) {
	rs := &recordingSleep{}
	w := NewWindow(WindowOpts{Quota: 1}, rs.sleep)

	require.True(t, w.Record())
	w.Cooldown()
	assert.Equal(t, []time.Duration{DefaultCooldown}, rs.calls)
}
