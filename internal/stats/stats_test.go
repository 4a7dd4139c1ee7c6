package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCountsEveryCall(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	for i := 0; i < 5; i++ {
		tr.Update(0x631, float64(i)*0.1)
	}
	entries := tr.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(5), entries[0].Count)
	assert.GreaterOrEqual(t, entries[0].Hz, 0.0)
}

func TestFrequencyBlend(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	// Steady 10 Hz: the first delta seeds the estimate, later ones blend.
	tr.Update(0x100, 0.0)
	tr.Update(0x100, 0.1)
	entries := tr.Snapshot()
	require.Len(t, entries, 1)
	assert.InDelta(t, 10.0, entries[0].Hz, 0.01)

	// One 20 Hz sample: ema = 0.8*10 + 0.2*20 = 12.
	tr.Update(0x100, 0.15)
	assert.InDelta(t, 12.0, tr.Snapshot()[0].Hz, 0.01)
}

func TestEqualTimestampsLeaveFrequencyUntouched(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Update(0x200, 1.0)
	tr.Update(0x200, 1.1)
	before := tr.Snapshot()[0].Hz

	tr.Update(0x200, 1.1) // same timestamp: count advances, Hz does not
	after := tr.Snapshot()[0]
	assert.Equal(t, uint64(3), after.Count)
	assert.Equal(t, before, after.Hz)
}

func TestOutOfOrderTimestampsNeverGoNegative(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Update(0x300, 5.0)
	tr.Update(0x300, 4.0) // clock went backwards
	e := tr.Snapshot()[0]
	assert.Equal(t, uint64(2), e.Count)
	assert.GreaterOrEqual(t, e.Hz, 0.0)

	// The tracker stored the newer (smaller) timestamp, so a following
	// sample measures from it.
	tr.Update(0x300, 4.5)
	assert.InDelta(t, 2.0, tr.Snapshot()[0].Hz, 0.01)
}

func TestFormatSortedAscending(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Update(0x7E8, 1.0)
	tr.Update(0x100, 1.0)
	tr.Update(0x631, 1.0)

	out := tr.Format()
	i100 := strings.Index(out, "0x100")
	i631 := strings.Index(out, "0x631")
	i7E8 := strings.Index(out, "0x7E8")
	assert.True(t, i100 < i631 && i631 < i7E8, "expected ascending order: %s", out)
}

func TestFormatEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "<no data>", NewTracker().Format())
}

