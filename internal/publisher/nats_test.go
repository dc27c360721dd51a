package publisher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ring-simulator/internal/history"
	"ring-simulator/internal/layout"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix, track, train string
		want                 string
	}{
		{"RING", "perfect", "Thomas", "RING.perfect.Thomas"},
		{"RING", "slow zone", "Kendall.MIT", "RING.slow_zone.Kendall_MIT"},
		{" ", "gaussian", "a>b*c", "_.gaussian.a_b_c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject(tt.prefix, tt.track, tt.train))
	}
}

func TestRunMessages(t *testing.T) {
	l := layout.Default()
	log := history.New([]string{"Thomas", "Gordon"}, l.StopPositions())
	for _, p := range []float64{1.5, 2, 2.5} {
		require.NoError(t, log.Add("Thomas", p))
	}
	for _, p := range []float64{3.5, 3.5, 4} {
		require.NoError(t, log.Add("Gordon", p))
	}

	msgs := RunMessages("b1", 3, "perfect", l, log)
	require.Len(t, msgs, 6)

	assert.Equal(t, PositionMessage{
		BatchID: "b1", Run: 3, Track: "perfect", Train: "Thomas", Step: 1,
		Position: 2, Progress: 2.0 / 14, Stop: "Davis",
	}, msgs[2])
	assert.Equal(t, "Gordon", msgs[5].Train)
	assert.Equal(t, 2, msgs[5].Step)
	assert.Equal(t, "Porter", msgs[5].Stop)
	assert.Empty(t, msgs[1].Stop)

	b, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "b1", fields["batchId"])
	assert.Equal(t, 1.5, fields["position"])
	assert.NotContains(t, fields, "stop")
}
