package session

import (
	"errors"
	"testing"
	"time"

	"easy2trade/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginResetsHistory(t *testing.T) {
	var s State
	assert.False(t, s.Analyzed("BTC"))

	s = Begin("btcusdt", 4)
	assert.True(t, s.Analyzed("BTC"))
	assert.False(t, s.Analyzed("ETH"))
	assert.Equal(t, types.ActionNone, s.LastAction)
	assert.Equal(t, 4, s.StartScore)
}

func TestManagerDo(t *testing.T) {
	m := NewManager()
	id := m.NewID()
	assert.NotEmpty(t, id)
	assert.NotEqual(t, id, m.NewID())

	require.NoError(t, m.Do(id, func(State) (State, error) {
		return Begin("SOL", -1), nil
	}))
	assert.True(t, m.Get(id).Analyzed("SOL"))

	err := m.Do(id, func(s State) (State, error) {
		return Begin("ADA", 0), errors.New("boom")
	})
	assert.Error(t, err)
	assert.True(t, m.Get(id).Analyzed("SOL"), "failed update must not be stored")
	assert.False(t, m.Get("other").Analyzed("SOL"))
}

func TestManagerExpiresIdleSessions(t *testing.T) {
	m := NewBoundedManager(time.Hour, 100)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	var evicted []string
	m.OnEvict(func(id string) { evicted = append(evicted, id) })

	require.NoError(t, m.Do("a", func(State) (State, error) { return Begin("SOL", 1), nil }))
	now = now.Add(30 * time.Minute)
	require.NoError(t, m.Do("b", func(State) (State, error) { return Begin("ADA", 0), nil }))

	now = now.Add(45 * time.Minute)
	assert.False(t, m.Get("a").Analyzed("SOL"), "idle session must be gone")
	assert.True(t, m.Get("b").Analyzed("ADA"))

	require.NoError(t, m.Do("c", func(State) (State, error) { return State{}, nil }))
	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, 2, m.Len())
}

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewBoundedManager(0, 2)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	var evicted []string
	m.OnEvict(func(id string) { evicted = append(evicted, id) })

	keep := func(State) (State, error) { return Begin("BTC", 0), nil }
	require.NoError(t, m.Do("a", keep))
	require.NoError(t, m.Do("b", keep))
	m.Get("a")
	require.NoError(t, m.Do("c", keep))

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Get("a").Analyzed("BTC"))
	assert.False(t, m.Get("b").Analyzed("BTC"))
}

func TestManagerSessionsDoNotBlockEachOther(t *testing.T) {
	m := NewManager()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = m.Do("slow", func(s State) (State, error) {
			close(entered)
			<-release
			return s, nil
		})
	}()
	<-entered
	defer close(release)

	done := make(chan error, 1)
	go func() {
		done <- m.Do("fast", func(State) (State, error) { return Begin("ETH", 2), nil })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("a slow session blocked another session")
	}
	assert.True(t, m.Get("fast").Analyzed("ETH"))
}
