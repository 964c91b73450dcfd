// Package gate decides whether an inbound chat message should be processed
// or silently dropped. It combines a short burst cooldown with a
// sliding-window flood block, both keyed by the conversation.
package gate

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

// Identity is the opaque key that buckets rate-limit state, one per
// conversation.
type Identity string

// ChatIdentity builds an Identity from a Telegram chat id.
func ChatIdentity(chatID int64) Identity {
	return Identity(strconv.FormatInt(chatID, 10))
}

// Verdict is the gate's binary decision. Reject means: process nothing,
// respond nothing.
type Verdict int

const (
	Allow Verdict = iota
	Reject
)

func (v Verdict) String() string {
	if v == Allow {
		return "allow"
	}
	return "reject"
}

// Config holds the gate thresholds. Zero values fall back to the defaults
// below.
type Config struct {
	// MinInterval is the minimum spacing between two messages from the same
	// identity. A closer pair triggers a cooldown.
	MinInterval time.Duration
	// Cooldown is how long the identity stays silenced after a burst.
	Cooldown time.Duration
	// FloodWindow is the trailing window over which messages are counted.
	FloodWindow time.Duration
	// FloodMax is the number of messages tolerated within FloodWindow.
	// Exceeding it installs the long block.
	FloodMax int
	// FloodBlock is how long the identity stays silenced after flooding.
	FloodBlock time.Duration
	// IdleTTL is how long an inactive identity's state is retained before
	// the janitor may evict it.
	IdleTTL time.Duration
	// CleanupEvery is the janitor cadence.
	CleanupEvery time.Duration
}

const (
	defaultMinInterval  = 5 * time.Second
	defaultCooldown     = 10 * time.Second
	defaultFloodWindow  = 60 * time.Second
	defaultFloodMax     = 10
	defaultFloodBlock   = 300 * time.Second
	defaultIdleTTL      = 15 * time.Minute
	defaultCleanupEvery = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = defaultMinInterval
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.FloodWindow <= 0 {
		c.FloodWindow = defaultFloodWindow
	}
	if c.FloodMax <= 0 {
		c.FloodMax = defaultFloodMax
	}
	if c.FloodBlock <= 0 {
		c.FloodBlock = defaultFloodBlock
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = defaultIdleTTL
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = defaultCleanupEvery
	}
	return c
}

// entry is the per-identity state for both sub-checks. The cooldown fields
// and the flood fields are independent; only the flood block short-circuits
// the cooldown evaluation.
type entry struct {
	lastMessage   time.Time
	cooldownUntil time.Time
	recent        []time.Time
	blockedUntil  time.Time
	lastSeen      time.Time
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	entries map[Identity]*entry
}

// Gate is a per-identity admission filter. Calls for the same identity are
// serialized on the identity's shard; different identities proceed in
// parallel. The gate never reads the clock: callers inject now, which keeps
// every decision deterministic.
type Gate struct {
	cfg    Config
	shards [shardCount]*shard
}

func New(cfg Config) *Gate {
	g := &Gate{cfg: cfg.withDefaults()}
	for i := range g.shards {
		g.shards[i] = &shard{entries: make(map[Identity]*entry)}
	}
	return g
}

func (g *Gate) shardFor(id Identity) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return g.shards[h.Sum32()%shardCount]
}

// Admit decides whether a message from id arriving at now should be
// processed. The flood check runs first: a message that trips or lands
// inside the long block never touches the cooldown clock.
func (g *Gate) Admit(id Identity, now time.Time) Verdict {
	s := g.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.lastSeen = now

	if v := g.checkFlood(e, now); v == Reject {
		return Reject
	}
	return g.checkCooldown(e, now)
}

func (g *Gate) checkFlood(e *entry, now time.Time) Verdict {
	if !e.blockedUntil.IsZero() {
		if now.Before(e.blockedUntil) {
			return Reject
		}
		e.blockedUntil = time.Time{}
	}

	cutoff := now.Add(-g.cfg.FloodWindow)
	kept := e.recent[:0]
	for _, t := range e.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.recent = append(kept, now)

	if len(e.recent) > g.cfg.FloodMax {
		e.blockedUntil = now.Add(g.cfg.FloodBlock)
		return Reject
	}
	return Allow
}

func (g *Gate) checkCooldown(e *entry, now time.Time) Verdict {
	if !e.cooldownUntil.IsZero() {
		if now.Before(e.cooldownUntil) {
			return Reject
		}
		e.cooldownUntil = time.Time{}
	}

	if !e.lastMessage.IsZero() && now.Sub(e.lastMessage) < g.cfg.MinInterval {
		e.cooldownUntil = now.Add(g.cfg.Cooldown)
		return Reject
	}

	e.lastMessage = now
	return Allow
}

// Cleanup evicts identities that have been idle past IdleTTL. An identity is
// never evicted while its cooldown or flood block is still running.
func (g *Gate) Cleanup(now time.Time) {
	cutoff := now.Add(-g.cfg.IdleTTL)
	for _, s := range g.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			if !e.lastSeen.Before(cutoff) {
				continue
			}
			if now.Before(e.blockedUntil) || now.Before(e.cooldownUntil) {
				continue
			}
			delete(s.entries, id)
		}
		s.mu.Unlock()
	}
}

// StartJanitor runs Cleanup on a ticker until ctx is done.
func (g *Gate) StartJanitor(ctx context.Context) {
	t := time.NewTicker(g.cfg.CleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				g.Cleanup(time.Now())
			}
		}
	}()
}

func (g *Gate) size() int {
	n := 0
	for _, s := range g.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
