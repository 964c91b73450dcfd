package gate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func testConfig() Config {
	return Config{
		MinInterval: 5 * time.Second,
		Cooldown:    10 * time.Second,
		FloodWindow: 60 * time.Second,
		FloodMax:    10,
		FloodBlock:  300 * time.Second,
	}
}

func TestAdmit_FirstMessageAllowed(t *testing.T) {
	g := New(testConfig())
	require.Equal(t, Allow, g.Admit("chat-1", at(0)))
}

func TestAdmit_WellSpacedTrafficAlwaysAllowed(t *testing.T) {
	g := New(testConfig())
	for i := 0; i < 50; i++ {
		now := at(float64(i * 7))
		require.Equal(t, Allow, g.Admit("chat-1", now), "message %d", i)
	}
}

func TestAdmit_BurstTriggersCooldown(t *testing.T) {
	g := New(testConfig())
	require.Equal(t, Allow, g.Admit("chat-1", at(0)))
	// 2s later: under the 5s minimum, installs cooldownUntil=12.
	require.Equal(t, Reject, g.Admit("chat-1", at(2)))
	// Still inside the cooldown.
	require.Equal(t, Reject, g.Admit("chat-1", at(11)))
	// Cooldown expired, and 13s since the last accepted message.
	require.Equal(t, Allow, g.Admit("chat-1", at(13)))
}

func TestAdmit_CooldownDoesNotAdvanceLastMessage(t *testing.T) {
	g := New(testConfig())
	require.Equal(t, Allow, g.Admit("chat-1", at(0)))
	require.Equal(t, Reject, g.Admit("chat-1", at(2)))
	// Cooldown (until 12) has expired, and relative to the accepted message
	// at t=0 the spacing is fine. The rejected message at t=2 must not have
	// refreshed the interval clock.
	require.Equal(t, Allow, g.Admit("chat-1", at(12.5)))
}

func TestAdmit_FloodInstallsLongBlock(t *testing.T) {
	g := New(testConfig())
	// 11 messages, one per second. The 11th exceeds FloodMax=10.
	for i := 0; i <= 9; i++ {
		g.Admit("chat-1", at(float64(i)))
	}
	require.Equal(t, Reject, g.Admit("chat-1", at(10)))

	// Block runs until t=310, regardless of spacing.
	require.Equal(t, Reject, g.Admit("chat-1", at(60)))
	require.Equal(t, Reject, g.Admit("chat-1", at(309)))

	// At t=310 the block has expired and the window is long empty. The
	// cooldown from the early burst expired ages ago too.
	require.Equal(t, Allow, g.Admit("chat-1", at(310)))
}

// TestAdmit_SpecScenario pins the full interaction of both sub-checks for
// calls at t=0..10, one second apart.
func TestAdmit_SpecScenario(t *testing.T) {
	g := New(testConfig())

	require.Equal(t, Allow, g.Admit("chat-1", at(0)))
	for i := 1; i <= 10; i++ {
		require.Equal(t, Reject, g.Admit("chat-1", at(float64(i))), "t=%d", i)
	}

	// The call at t=10 was the 11th inside the window and installed
	// blockedUntil=310. Everything before that stays rejected.
	require.Equal(t, Reject, g.Admit("chat-1", at(150)))
	require.Equal(t, Allow, g.Admit("chat-1", at(310)))
}

func TestAdmit_WindowSlidesForward(t *testing.T) {
	cfg := testConfig()
	cfg.MinInterval = time.Second // keep the cooldown out of the way
	g := New(cfg)

	// 10 messages inside the first minute: at the limit, no block.
	for i := 0; i < 10; i++ {
		require.Equal(t, Allow, g.Admit("chat-1", at(float64(i*6))))
	}
	// 61s after the first message it has left the window, so the next one
	// still fits.
	require.Equal(t, Allow, g.Admit("chat-1", at(61)))
}

func TestAdmit_IdentitiesAreIndependent(t *testing.T) {
	g := New(testConfig())

	// Flood chat-1 into a block.
	for i := 0; i <= 10; i++ {
		g.Admit("chat-1", at(float64(i)))
	}
	require.Equal(t, Reject, g.Admit("chat-1", at(20)))

	// chat-2 is untouched.
	require.Equal(t, Allow, g.Admit("chat-2", at(20)))
	require.Equal(t, Allow, g.Admit("chat-2", at(26)))
}

func TestAdmit_BlockedMessagesDoNotTouchCooldown(t *testing.T) {
	g := New(testConfig())
	for i := 0; i <= 10; i++ {
		g.Admit("chat-1", at(float64(i)))
	}
	// Hammering during the block must not extend it or install cooldowns.
	for i := 20; i < 30; i++ {
		require.Equal(t, Reject, g.Admit("chat-1", at(float64(i))))
	}
	require.Equal(t, Allow, g.Admit("chat-1", at(310)))
}

func TestCleanup_EvictsIdleIdentities(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTTL = time.Minute
	g := New(cfg)

	g.Admit("chat-idle", at(0))
	g.Admit("chat-busy", at(100))
	require.Equal(t, 2, g.size())

	g.Cleanup(at(100))
	require.Equal(t, 1, g.size())

	// The evicted identity starts fresh: a message right away is the first
	// one again.
	require.Equal(t, Allow, g.Admit("chat-idle", at(101)))
}

func TestCleanup_KeepsActiveBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTTL = time.Minute
	g := New(cfg)

	for i := 0; i <= 10; i++ {
		g.Admit("chat-1", at(float64(i)))
	}

	// Idle past the TTL, but the flood block runs until t=310.
	g.Cleanup(at(200))
	require.Equal(t, Reject, g.Admit("chat-1", at(200)))

	// Once the block has expired the janitor may drop the entry.
	g.Cleanup(at(400))
	require.Equal(t, 0, g.size())
}

func TestAdmit_ConcurrentIdentities(t *testing.T) {
	g := New(testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := Identity(fmt.Sprintf("chat-%d", n))
			for j := 0; j < 100; j++ {
				g.Admit(id, at(float64(j)))
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 16, g.size())
}

func TestChatIdentity(t *testing.T) {
	require.Equal(t, Identity("-100123"), ChatIdentity(-100123))
}

func TestVerdictString(t *testing.T) {
	require.Equal(t, "allow", Allow.String())
	require.Equal(t, "reject", Reject.String())
}
