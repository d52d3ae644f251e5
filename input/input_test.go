package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/netpong/protocol"
)

func TestParseKey(t *testing.T) {
	for _, name := range []string{"w", "W", "ArrowUp", "up"} {
		k, ok := ParseKey(name)
		require.True(t, ok, name)
		assert.Equal(t, KeyUp, k)
	}

	k, ok := ParseKey("s")
	require.True(t, ok)
	assert.Equal(t, KeyDown, k)

	_, ok = ParseKey("space")
	assert.False(t, ok)
}

func TestSamplerIdleSendsNothing(t *testing.T) {
	keys := &KeyState{}
	s := NewSampler(keys, ModePosition, DefaultSendInterval)

	out := s.Sample(time.Unix(0, 0))
	assert.False(t, out.Moved())
	assert.False(t, out.Send)
}

func TestSamplerOpposingKeysCancel(t *testing.T) {
	keys := &KeyState{}
	keys.Press(KeyUp)
	keys.Press(KeyDown)

	out := NewSampler(keys, ModeDirection, 0).Sample(time.Unix(0, 0))
	assert.False(t, out.Moved())
	assert.False(t, out.Send)
}

func TestSamplerPositionModeThrottlesAndFlushes(t *testing.T) {
	keys := &KeyState{}
	s := NewSampler(keys, ModePosition, 50*time.Millisecond)
	t0 := time.Unix(100, 0)

	keys.Press(KeyDown)
	first := s.Sample(t0)
	assert.InDelta(t, DefaultStep, first.Delta, 1e-9)
	assert.True(t, first.Send)

	second := s.Sample(t0.Add(20 * time.Millisecond))
	assert.True(t, second.Moved())
	assert.False(t, second.Send, "inside the send interval")

	keys.Release(KeyDown)
	third := s.Sample(t0.Add(40 * time.Millisecond))
	assert.False(t, third.Moved())
	assert.False(t, third.Send)

	flushed := s.Sample(t0.Add(60 * time.Millisecond))
	assert.False(t, flushed.Moved())
	assert.True(t, flushed.Send, "the throttled position must still go out")

	idle := s.Sample(t0.Add(200 * time.Millisecond))
	assert.False(t, idle.Send)
}

func TestSamplerDirectionModeDropsThrottledMoves(t *testing.T) {
	keys := &KeyState{}
	s := NewSampler(keys, ModeDirection, 50*time.Millisecond)
	t0 := time.Unix(100, 0)

	keys.Press(KeyUp)
	out := s.Sample(t0)
	assert.True(t, out.Send)
	assert.Equal(t, protocol.DirectionUp, out.Direction)
	assert.InDelta(t, -DefaultStep, out.Delta, 1e-9)

	assert.False(t, s.Sample(t0.Add(20*time.Millisecond)).Send)

	keys.Clear()
	assert.False(t, s.Sample(t0.Add(80*time.Millisecond)).Send)
}
