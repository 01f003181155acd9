package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockoutPolicy(t *testing.T) {
	p := LockoutPolicy{Threshold: 3, Cooldown: time.Minute}
	now := time.Unix(1_700_000_000, 0)
	a := &Account{}

	assert.False(t, p.RegisterFailure(a, now))
	assert.False(t, p.RegisterFailure(a, now))
	assert.True(t, p.RegisterFailure(a, now))
	assert.True(t, a.IsLocked(now))
	assert.True(t, a.IsLocked(now.Add(59*time.Second)))
	assert.False(t, a.IsLocked(now.Add(time.Minute)), "lock ends exactly at locked-until")

	p.ClearExpired(a, now.Add(30*time.Second))
	assert.Equal(t, 3, a.FailedAttempts, "active lock is untouched")

	p.ClearExpired(a, now.Add(time.Minute))
	assert.Equal(t, 0, a.FailedAttempts)
	assert.True(t, a.LockedUntil.IsZero())
}
