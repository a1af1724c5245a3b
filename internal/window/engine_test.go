package window

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(size float64) EstimateFunc[string] {
	return func(string, int) float64 { return size }
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i%26))
	}
	return out
}

func renderedIndices(frame Frame[string]) []int {
	out := make([]int, 0, len(frame.RenderList))
	for _, item := range frame.RenderList {
		out = append(out, item.Index)
	}
	return out
}

func TestOnScrollFiveItemsScenario(t *testing.T) {
	e := New[string]()
	e.Configure(names(5), constant(100), 1, 0)

	frame := e.OnScroll(150, 250)

	assert.True(t, frame.ShouldVirtualize)
	assert.Equal(t, 500.0, frame.TotalSize)
	// [150, 400) intersects items at [100,200), [200,300), [300,400)
	assert.Equal(t, Range{Start: 1, End: 4}, frame.VisibleRange)
	// Overscan of one on each side, clamped to the list
	assert.Equal(t, Range{Start: 0, End: 5}, frame.RenderRange)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, renderedIndices(frame))

	for i, item := range frame.RenderList {
		assert.Equal(t, float64(i)*100, item.OffsetStart)
		assert.Equal(t, 100.0, item.Size)
	}
}

func TestOnScrollEmptyList(t *testing.T) {
	e := New[string]()
	e.Configure(nil, constant(100), 3, 0)

	frame := e.OnScroll(500, 300)

	assert.Equal(t, 0.0, frame.TotalSize)
	assert.Empty(t, frame.RenderList)
	assert.True(t, frame.VisibleRange.Empty())
	assert.False(t, frame.ShouldVirtualize)
}

func TestOnScrollItemTallerThanViewport(t *testing.T) {
	e := New[string]()
	e.Configure(names(3), func(_ string, i int) float64 {
		if i == 1 {
			return 2000
		}
		return 50
	}, 0, 0)

	frame := e.OnScroll(600, 300)

	assert.Equal(t, Range{Start: 1, End: 2}, frame.VisibleRange)
	require.Len(t, frame.RenderList, 1)
	assert.Equal(t, 1, frame.RenderList[0].Index)
	assert.Equal(t, 50.0, frame.RenderList[0].OffsetStart)
}

func TestSmallListBypassesWindowing(t *testing.T) {
	e := New[string]()
	sizes := []float64{10, 20, 30, 40}
	e.Configure(names(4), func(_ string, i int) float64 { return sizes[i] }, 1, 10)

	frame := e.OnScroll(0, 15)

	assert.False(t, frame.ShouldVirtualize)
	assert.Equal(t, 100.0, frame.TotalSize)
	assert.Equal(t, []int{0, 1, 2, 3}, renderedIndices(frame))

	expectedOffsets := []float64{0, 10, 30, 60}
	for i, item := range frame.RenderList {
		assert.Equal(t, expectedOffsets[i], item.OffsetStart)
		assert.Equal(t, sizes[i], item.Size)
	}
	// Visible range is still reported for callers that want it
	assert.Equal(t, Range{Start: 0, End: 2}, frame.VisibleRange)
}

func TestMeasurementCorrectionShiftsLaterOffsetsOnly(t *testing.T) {
	e := New[string]()
	e.Configure(names(6), constant(100), 0, 0)

	before := make([]float64, 7)
	for i := range before {
		before[i] = e.OffsetOf(i)
	}

	e.OnItemMeasured(2, 250)

	for i := 0; i <= 2; i++ {
		assert.Equal(t, before[i], e.OffsetOf(i), "offset %d must be unchanged", i)
	}
	for i := 3; i <= 6; i++ {
		assert.Equal(t, before[i]+150, e.OffsetOf(i), "offset %d must use measured size", i)
	}
	assert.Equal(t, 750.0, e.TotalSize())
	assert.Equal(t, 250.0, e.SizeOf(2))

	// Shrinking is allowed and reduces the total
	e.OnItemMeasured(2, 20)
	assert.Equal(t, 520.0, e.TotalSize())
	assert.Equal(t, 220.0, e.OffsetOf(3))
}

func TestOnItemMeasuredIgnoresMalformedInput(t *testing.T) {
	e := New[string]()
	e.Configure(names(3), constant(100), 0, 0)

	e.OnItemMeasured(-1, 500)
	e.OnItemMeasured(3, 500)
	e.OnItemMeasured(99, 500)
	assert.Equal(t, 300.0, e.TotalSize())

	e.OnItemMeasured(0, -40)
	assert.Equal(t, 0.0, e.SizeOf(0))
	assert.Equal(t, 0.0, e.OffsetOf(1))

	e.OnItemMeasured(1, math.NaN())
	assert.Equal(t, 0.0, e.SizeOf(1))
	assert.Equal(t, 100.0, e.TotalSize())
}

func TestOnScrollClampsOffset(t *testing.T) {
	e := New[string]()
	e.Configure(names(10), constant(100), 0, 0)

	neg := e.OnScroll(-500, 300)
	assert.Equal(t, 0.0, neg.ScrollOffset)
	assert.Equal(t, 0, neg.VisibleRange.Start)

	past := e.OnScroll(5000, 300)
	assert.Equal(t, 700.0, past.ScrollOffset)
	assert.Equal(t, Range{Start: 7, End: 10}, past.VisibleRange)

	inf := e.OnScroll(math.Inf(1), 300)
	assert.Equal(t, 700.0, inf.ScrollOffset)

	nan := e.OnScroll(math.NaN(), math.NaN())
	assert.Equal(t, 0.0, nan.ScrollOffset)
	assert.Equal(t, 1, nan.VisibleRange.Len())
}

func TestConfigureKeepsMeasurementsByKey(t *testing.T) {
	e := New[string]()
	e.SetKeyFunc(func(s string) string { return s })
	e.Configure([]string{"a", "b", "c"}, constant(100), 0, 0)
	e.OnItemMeasured(1, 300)

	// "a" dropped off the front, so "b" is now index 0
	e.Configure([]string{"b", "c", "d"}, constant(100), 0, 0)

	assert.Equal(t, 300.0, e.SizeOf(0))
	assert.Equal(t, 100.0, e.SizeOf(1))
	assert.Equal(t, 500.0, e.TotalSize())
}

func TestScrollOffsetFor(t *testing.T) {
	e := New[string]()
	e.Configure(names(10), constant(100), 0, 0)

	assert.Equal(t, 300.0, e.ScrollOffsetFor(3, AlignStart, 250))
	assert.Equal(t, 225.0, e.ScrollOffsetFor(3, AlignCenter, 250))
	assert.Equal(t, 150.0, e.ScrollOffsetFor(3, AlignEnd, 250))
	// Near the end the target is clamped to the scrollable range
	assert.Equal(t, 750.0, e.ScrollOffsetFor(9, AlignStart, 250))
	assert.Equal(t, 0.0, e.ScrollOffsetFor(-4, AlignStart, 250))
}

func TestIndexAt(t *testing.T) {
	e := New[string]()
	assert.Equal(t, -1, e.IndexAt(10))

	e.Configure(names(4), constant(100), 0, 0)
	assert.Equal(t, 0, e.IndexAt(0))
	assert.Equal(t, 0, e.IndexAt(99.9))
	assert.Equal(t, 1, e.IndexAt(100))
	assert.Equal(t, 3, e.IndexAt(10000))
}

// Every item intersecting the viewport must be in the visible range, and
// nothing outside it may be, for arbitrary sizes and measurements.
func TestVisibleRangeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(300)
		sizes := make([]float64, n)
		for i := range sizes {
			sizes[i] = float64(1 + rng.Intn(400))
		}

		e := New[string]()
		e.Configure(names(n), func(_ string, i int) float64 { return sizes[i] }, 2, 0)

		// Correct a handful of sizes the way layout callbacks would
		for k := 0; k < 5; k++ {
			i := rng.Intn(n)
			sizes[i] = float64(1 + rng.Intn(600))
			e.OnItemMeasured(i, sizes[i])
		}

		total := 0.0
		for _, s := range sizes {
			total += s
		}
		require.InDelta(t, total, e.TotalSize(), 1e-9)

		viewport := float64(50 + rng.Intn(900))
		maxOffset := math.Max(0, total-viewport)
		offset := rng.Float64() * maxOffset

		frame := e.OnScroll(offset, viewport)

		start := 0.0
		for i, size := range sizes {
			intersects := start < offset+viewport && start+size > offset
			if intersects {
				assert.True(t, frame.VisibleRange.Contains(i),
					"trial %d: item %d [%v,%v) intersects [%v,%v) but is outside %v",
					trial, i, start, start+size, offset, offset+viewport, frame.VisibleRange)
			} else {
				assert.False(t, frame.VisibleRange.Contains(i),
					"trial %d: item %d does not intersect but is inside %v", trial, i, frame.VisibleRange)
			}
			start += size
		}

		// Offsets in the render list are monotonic and non-negative
		prev := -1.0
		for _, item := range frame.RenderList {
			assert.GreaterOrEqual(t, item.OffsetStart, 0.0)
			assert.GreaterOrEqual(t, item.OffsetStart, prev)
			prev = item.OffsetStart
		}
	}
}
