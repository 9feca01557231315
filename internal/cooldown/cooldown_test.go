package cooldown

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestArm_ActiveUntilExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New[int64](time.Minute, clock)

	assert.False(t, tr.IsActive(1))
	tr.Arm(1)
	assert.True(t, tr.IsActive(1))

	clock.Advance(59 * time.Second)
	assert.True(t, tr.IsActive(1))

	clock.Advance(time.Second)
	assert.False(t, tr.IsActive(1))
	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, time.Millisecond)
}

func TestArm_RestartsWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New[string](10*time.Second, clock)

	tr.Arm("a")
	clock.Advance(8 * time.Second)
	tr.Arm("a")

	// the first timer fires here and must not remove the newer arm
	clock.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.True(t, tr.IsActive("a"))
	assert.Equal(t, 1, tr.Len())

	clock.Advance(5 * time.Second)
	assert.False(t, tr.IsActive("a"))
	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, time.Millisecond)
}

func TestSetDuration_AffectsLaterArmsOnly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New[int](10*time.Second, clock)

	tr.Arm(1)
	tr.SetDuration(time.Minute)
	tr.Arm(2)

	clock.Advance(10 * time.Second)
	assert.False(t, tr.IsActive(1))
	assert.True(t, tr.IsActive(2))

	clock.Advance(50 * time.Second)
	assert.False(t, tr.IsActive(2))
	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, time.Millisecond)
}

func TestReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New[int](time.Minute, clock)

	tr.Arm(1)
	tr.Reset(1)
	assert.False(t, tr.IsActive(1))
	assert.Equal(t, 0, tr.Len())

	tr.Reset(2) // unknown key is a no-op
}

func TestKeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New[int](time.Minute, clock)

	tr.Arm(1)
	clock.Advance(30 * time.Second)
	tr.Arm(2)
	clock.Advance(30 * time.Second)

	assert.False(t, tr.IsActive(1))
	assert.True(t, tr.IsActive(2))
}

func TestConcurrentArm(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New[int](time.Minute, clock)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Arm(i % 8)
			_ = tr.IsActive(i % 8)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, tr.Len())
	for k := 0; k < 8; k++ {
		assert.True(t, tr.IsActive(k))
	}

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, time.Millisecond)
}

func TestNew_RealClock(t *testing.T) {
	tr := New[int](20*time.Millisecond, nil)
	tr.Arm(1)
	assert.True(t, tr.IsActive(1))
	require.Eventually(t, func() bool { return !tr.IsActive(1) && tr.Len() == 0 }, time.Second, 5*time.Millisecond)
}
