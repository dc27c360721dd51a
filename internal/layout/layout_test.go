package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	l := Default()

	assert.Equal(t, "Red Line", l.Name)
	assert.Equal(t, 14.0, l.Length)
	assert.Equal(t, []float64{0, 2, 4, 6, 8, 10, 12}, l.StopPositions())
	assert.Equal(t, []string{"Thomas", "Gordon", "Emily", "James", "Edward", "Percy", "Henry"}, l.TrainNames())
	assert.Equal(t, Zone{Start: 10, End: 12}, l.SlowZone)
	assert.Equal(t, 2.0, l.MinSegment())

	for i, tr := range l.Trains {
		assert.Equal(t, l.Stops[i].Position, tr.Start, tr.Name)
	}
	s, ok := l.StopAt(4)
	require.True(t, ok)
	assert.Equal(t, "Porter", s.Name)
	_, ok = l.StopAt(4.5)
	assert.False(t, ok)
}

func TestZoneContains(t *testing.T) {
	z := Zone{Start: 10, End: 12}
	assert.True(t, z.Contains(10))
	assert.True(t, z.Contains(11.99))
	assert.False(t, z.Contains(12))
	assert.False(t, z.Contains(9.99))
}

func TestParse(t *testing.T) {
	doc := `
name: Short Loop
length: 6
stopDistance: 1.5
stops: [North, East, South, West]
trainStarts:
  - name: A
    start: 0.75
  - name: B
    start: 6.5
slowZoneStart: South
`
	l, err := Parse([]byte(doc))
	require.NoError(t, err)

	want := []Stop{{"North", 0}, {"East", 1.5}, {"South", 3}, {"West", 4.5}}
	if diff := cmp.Diff(want, l.Stops); diff != "" {
		t.Errorf("stops mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []Train{{"A", 0.75}, {"B", 0.5}}, l.Trains)
	assert.Equal(t, Zone{Start: 3, End: 4.5}, l.SlowZone)
	assert.Equal(t, 1.5, l.MinSegment())
}

func TestParseDefaultsSlowZoneToLastButOneStop(t *testing.T) {
	l, err := Parse([]byte("length: 8\nstopDistance: 2\nstops: [a, b, c, d]\ntrains: [x]\n"))
	require.NoError(t, err)
	assert.Equal(t, Zone{Start: 4, End: 6}, l.SlowZone)
	assert.Equal(t, []Train{{"x", 0}}, l.Trains)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no length", "stopDistance: 2\nstops: [a]\ntrains: [x]\n"},
		{"stop distance too large", "length: 2\nstopDistance: 3\nstops: [a]\ntrains: [x]\n"},
		{"missing stop names", "length: 8\nstopDistance: 2\nstops: [a, b]\ntrains: [x]\n"},
		{"too many trains", "length: 4\nstopDistance: 2\nstops: [a, b]\ntrains: [x, y, z]\n"},
		{"no trains", "length: 4\nstopDistance: 2\nstops: [a, b]\n"},
		{"duplicate train", "length: 4\nstopDistance: 2\nstops: [a, b]\ntrains: [x, x]\n"},
		{"shared start", "length: 4\nstopDistance: 2\nstops: [a, b]\ntrainStarts:\n  - {name: x, start: 1}\n  - {name: y, start: 1}\n"},
		{"unknown slow zone stop", "length: 4\nstopDistance: 2\nstops: [a, b]\ntrains: [x]\nslowZoneStart: q\n"},
		{"not yaml", "length: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("length: 4\nstopDistance: 2\nstops: [a, b]\ntrains: [x, y]\n"), 0o600))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2}, l.StopPositions())
	assert.Equal(t, []string{"x", "y"}, l.TrainNames())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMinSegmentIncludesWrap(t *testing.T) {
	l := &Layout{
		Length: 10,
		Stops:  []Stop{{"a", 1}, {"b", 5}, {"c", 9.5}},
		Trains: []Train{{"x", 0}},
	}
	require.NoError(t, l.Validate())
	assert.Equal(t, 1.5, l.MinSegment())
}
