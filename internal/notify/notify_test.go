package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRingNotifier_KeepsMostRecent(t *testing.T) {
	n := NewRingNotifier(3, NopNotifier{})

	n.Notify("one", SeverityInfo, DurationShort)
	n.Notify("two", SeverityInfo, DurationShort)
	n.Notify("three", SeverityInfo, DurationShort)
	n.Notify("four", SeverityWarning, DurationLong)

	recent := n.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "two", recent[0].Message)
	assert.Equal(t, "four", recent[2].Message)
}

func TestRingNotifier_ForwardsToInner(t *testing.T) {
	inner := NewRingNotifier(10, NopNotifier{})
	n := NewRingNotifier(10, inner)

	n.Notify("quota low", SeverityWarning, DurationMedium)

	require.Len(t, inner.Recent(), 1)
	assert.Equal(t, "quota low", inner.Recent()[0].Message)
}

func TestNotification_DurationMarshalsAsMillis(t *testing.T) {
	n := NewRingNotifier(1, NopNotifier{})
	n.Notify("slow down", SeverityError, DurationLong)

	out, err := json.Marshal(n.Recent()[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, float64(DurationLong.Milliseconds()), decoded["duration_ms"])
	assert.Equal(t, "slow down", decoded["message"])
}

func TestNotification_StickyFlag(t *testing.T) {
	n := NewRingNotifier(1, NewLogNotifier(zap.NewNop()))
	n.Notify("token rejected", SeverityError, DurationSticky)

	recent := n.Recent()
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Sticky)

	out, err := json.Marshal(recent[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, float64(0), decoded["duration_ms"])
	assert.Equal(t, true, decoded["sticky"])
}
