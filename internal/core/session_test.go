package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/duo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func member(cid string) *domain.Member {
	return domain.NewMember(domain.ConnectionID(cid), domain.UserID("user"+cid), "", t0)
}

func TestSession_FirstMemberIsHost(t *testing.T) {
	s := NewSession("ABCD", t0)

	res, err := s.Join(member("c1"))
	require.NoError(t, err)
	assert.True(t, res.IsHost)
	assert.Empty(t, res.Others)
	assert.Equal(t, domain.ConnectionID("c1"), s.Host())

	res, err = s.Join(member("c2"))
	require.NoError(t, err)
	assert.False(t, res.IsHost)
	require.Len(t, res.Others, 1)
	assert.Equal(t, domain.ConnectionID("c1"), res.Others[0].ConnectionID)
	assert.Equal(t, domain.ConnectionID("c1"), s.Host())
}

func TestSession_RejectsThirdAndDuplicate(t *testing.T) {
	s := NewSession("ABCD", t0)
	_, err := s.Join(member("c1"))
	require.NoError(t, err)

	_, err = s.Join(member("c1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	_, err = s.Join(member("c2"))
	require.NoError(t, err)

	_, err = s.Join(member("c3"))
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	assert.Equal(t, 2, s.MemberCount())
	_, ok := s.Find("c3")
	assert.False(t, ok)
}

func TestSession_HostSuccession(t *testing.T) {
	s := NewSession("ABCD", t0)
	_, _ = s.Join(member("c1"))
	_, _ = s.Join(member("c2"))

	res, err := s.Leave("c1", t0)
	require.NoError(t, err)
	assert.True(t, res.WasHost)
	assert.Equal(t, domain.ConnectionID("c2"), res.NewHost)
	assert.False(t, res.Empty)
	assert.Equal(t, domain.ConnectionID("c2"), s.Host())

	res, err = s.Leave("c2", t0)
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Empty(t, s.Host())
	assert.True(t, s.Closed())

	_, err = s.Join(member("c3"))
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestSession_NonHostLeaveKeepsHost(t *testing.T) {
	s := NewSession("ABCD", t0)
	_, _ = s.Join(member("c1"))
	_, _ = s.Join(member("c2"))

	res, err := s.Leave("c2", t0)
	require.NoError(t, err)
	assert.False(t, res.WasHost)
	assert.Empty(t, res.NewHost)
	assert.Equal(t, domain.ConnectionID("c1"), s.Host())

	_, err = s.Leave("c2", t0)
	assert.ErrorIs(t, err, domain.ErrNotAMember)
}

func TestSession_SetHost(t *testing.T) {
	s := NewSession("ABCD", t0)
	_, _ = s.Join(member("c1"))
	_, _ = s.Join(member("c2"))

	m, ok := s.SetHost("c2")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("userc2"), m.UserID)
	assert.Equal(t, domain.ConnectionID("c2"), s.Host())

	_, ok = s.SetHost("nobody")
	assert.False(t, ok)
	assert.Equal(t, domain.ConnectionID("c2"), s.Host())
}

func TestSession_CloseIfIdle(t *testing.T) {
	s := NewSession("ABCD", t0)
	assert.False(t, s.CloseIfIdle(t0.Add(time.Second), time.Minute))
	assert.True(t, s.CloseIfIdle(t0.Add(2*time.Minute), time.Minute))
	assert.True(t, s.Closed())

	busy := NewSession("BUSY", t0)
	_, _ = busy.Join(member("c1"))
	assert.False(t, busy.CloseIfIdle(t0.Add(time.Hour), time.Minute))
}

func TestSession_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	s := NewSession("ABCD", t0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Join(member(fmt.Sprintf("c%d", i))); err == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, domain.MaxMembers, joined)
	assert.Equal(t, domain.MaxMembers, s.MemberCount())
	_, isMember := s.Find(s.Host())
	assert.True(t, isMember)
}
