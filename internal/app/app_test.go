package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/duo/internal/core"
	"github.com/dkeye/duo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

func TestGetOrCreateIsIdempotentUnderConcurrency(t *testing.T) {
	reg := NewSessionRegistry(nil)

	var wg sync.WaitGroup
	got := make([]*core.Session, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = reg.GetOrCreate("ABCD")
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestGetOrCreateReplacesClosedSession(t *testing.T) {
	clock := newFakeClock()
	reg := NewSessionRegistry(clock.Now)
	m := NewMembership(reg)

	first := reg.GetOrCreate("ABCD")
	_, err := m.Join("ABCD", "c1", "alice", "")
	require.NoError(t, err)
	_, err = first.Leave("c1", clock.Now())
	require.NoError(t, err)
	require.True(t, first.Closed())

	second := reg.GetOrCreate("ABCD")
	assert.NotSame(t, first, second)
	assert.False(t, second.Closed())
}

func TestRemoveSessionKeepsNewerSession(t *testing.T) {
	reg := NewSessionRegistry(nil)
	old := reg.GetOrCreate("ABCD")
	reg.Remove("ABCD")
	fresh := reg.GetOrCreate("ABCD")

	assert.False(t, reg.RemoveSession(old))
	got, ok := reg.Get("ABCD")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	reg.Remove("NOPE")
	assert.Equal(t, 1, reg.Len())
}

func TestMembershipJoinRequiresSession(t *testing.T) {
	m := NewMembership(NewSessionRegistry(nil))
	_, err := m.Join("ABCD", "c1", "alice", "")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = m.Leave("ABCD", "c1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, ok := m.SetHost("ABCD", "c1")
	assert.False(t, ok)
}

func TestMembershipLifecycle(t *testing.T) {
	reg := NewSessionRegistry(nil)
	m := NewMembership(reg)
	reg.GetOrCreate("ABCD")

	a, err := m.Join("ABCD", "c1", "alice", "Alice")
	require.NoError(t, err)
	assert.True(t, a.IsHost)

	b, err := m.Join("ABCD", "c2", "bob", "")
	require.NoError(t, err)
	assert.False(t, b.IsHost)
	require.Len(t, b.Others, 1)
	assert.Equal(t, domain.UserID("alice"), b.Others[0].UserID)

	_, err = m.Join("ABCD", "c3", "carol", "")
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	assert.Len(t, m.Members("ABCD"), 2)

	others := m.Others("ABCD", "c1")
	require.Len(t, others, 1)
	assert.Equal(t, domain.ConnectionID("c2"), others[0].ConnectionID)

	found, ok := m.Find("ABCD", "c2")
	require.True(t, ok)
	assert.Equal(t, "bob", found.DisplayName)

	res, err := m.Leave("ABCD", "c1")
	require.NoError(t, err)
	assert.True(t, res.WasHost)
	assert.Equal(t, domain.ConnectionID("c2"), res.NewHost)

	_, err = m.Leave("ABCD", "c1")
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	res, err = m.Leave("ABCD", "c2")
	require.NoError(t, err)
	assert.True(t, res.Empty)
	_, ok = reg.Get("ABCD")
	assert.False(t, ok, "empty session is deleted immediately")
}

func TestSweeperRemovesOnlyIdleSessions(t *testing.T) {
	clock := newFakeClock()
	reg := NewSessionRegistry(clock.Now)
	sw := &Sweeper{Sessions: reg, Interval: time.Minute, Retention: 5 * time.Minute}

	reg.GetOrCreate("OLD1")
	clock.Advance(4 * time.Minute)
	reg.GetOrCreate("NEW1")
	live := reg.GetOrCreate("LIVE")
	_, err := live.Join(domain.NewMember("c1", "alice", "", clock.Now()))
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Second)
	assert.Equal(t, 1, sw.Sweep())

	_, ok := reg.Get("OLD1")
	assert.False(t, ok)
	_, ok = reg.Get("NEW1")
	assert.True(t, ok, "emptied recently, kept")
	_, ok = reg.Get("LIVE")
	assert.True(t, ok)
}

func TestSweeperSkipsSessionThatGainedMember(t *testing.T) {
	clock := newFakeClock()
	reg := NewSessionRegistry(clock.Now)
	sw := &Sweeper{Sessions: reg, Retention: time.Second}

	sess := reg.GetOrCreate("ABCD")
	clock.Advance(time.Hour)
	_, err := sess.Join(domain.NewMember("c1", "alice", "", clock.Now()))
	require.NoError(t, err)

	assert.Zero(t, sw.Sweep())
	assert.False(t, sess.Closed())
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	reg := NewSessionRegistry(nil)
	sw := &Sweeper{Sessions: reg, Interval: time.Millisecond, Retention: 0}
	reg.GetOrCreate("ABCD")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestConnRegistryTakeRoomOnce(t *testing.T) {
	r := NewConnRegistry()
	canceled := false
	r.Bind("c1", nopSignal{}, func() { canceled = true })
	require.True(t, r.SetRoom("c1", "ABCD", "alice"))

	room, user, ok := r.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("ABCD"), room)
	assert.Equal(t, domain.UserID("alice"), user)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.TakeRoom("c1"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	_, _, ok = r.RoomOf("c1")
	assert.False(t, ok)

	assert.True(t, r.Cancel("c1"))
	assert.True(t, canceled)
	r.Unbind("c1")
	assert.False(t, r.Cancel("c1"))
	assert.False(t, r.SetRoom("c1", "ABCD", "alice"))
	assert.Zero(t, r.Len())
}
