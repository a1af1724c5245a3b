// Package window computes which slice of a long, variable-height list must be
// rendered for a given scroll position, and where each rendered item sits.
//
// An Engine is scoped to one list instance. Sizes start as estimates and are
// corrected as items report their measured height; offsets are prefix sums
// recomputed lazily from the lowest corrected index, and visible bounds are
// found by binary search so OnScroll stays cheap at scroll-event frequency.
package window

import (
	"math"
	"sort"
	"sync"
)

const (
	// DefaultItemSize is used when no estimate function is configured
	DefaultItemSize = 120.0

	// DefaultOverscan is the number of extra items rendered past each edge
	DefaultOverscan = 5

	// DefaultThreshold is the item count below which windowing is bypassed
	DefaultThreshold = 20
)

// EstimateFunc guesses an item's size before it has been measured
type EstimateFunc[T any] func(item T, index int) float64

// KeyFunc returns a stable identity for an item. When set, measurements
// survive Configure calls for items whose key is unchanged.
type KeyFunc[T any] func(item T) string

// Range is a half-open index range [Start, End). Start <= End always holds;
// an empty list yields the zero Range.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of indices in the range
func (r Range) Len() int {
	return r.End - r.Start
}

// Empty reports whether the range holds no indices
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether index i lies within the range
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// RenderItem is one item to draw and its absolute position
type RenderItem[T any] struct {
	Index       int     `json:"index"`
	Item        T       `json:"item"`
	OffsetStart float64 `json:"offset_start"`
	Size        float64 `json:"size"`
}

// Frame is the result of a scroll computation
type Frame[T any] struct {
	// VisibleRange holds exactly the items intersecting the viewport
	VisibleRange Range `json:"visible_range"`

	// RenderRange is VisibleRange widened by overscan, or every item when
	// windowing is bypassed
	RenderRange Range `json:"render_range"`

	TotalSize        float64         `json:"total_size"`
	ShouldVirtualize bool            `json:"should_virtualize"`
	ScrollOffset     float64         `json:"scroll_offset"`
	RenderList       []RenderItem[T] `json:"render_list"`
}

// Align selects where an item lands when scrolling to it
type Align int

const (
	AlignStart Align = iota
	AlignCenter
	AlignEnd
)

// Engine tracks item sizes for a single list
type Engine[T any] struct {
	mu sync.Mutex

	items     []T
	estimate  EstimateFunc[T]
	key       KeyFunc[T]
	overscan  int
	threshold int

	estimated   []float64
	measured    []float64
	hasMeasured []bool

	// offsets[i] is the summed size of items [0, i); len(offsets) == n+1.
	// Entries up to and including offsets[validThrough] are current.
	offsets      []float64
	validThrough int
}

// New creates an empty engine with default overscan and threshold
func New[T any]() *Engine[T] {
	return &Engine[T]{
		overscan:  DefaultOverscan,
		threshold: DefaultThreshold,
		offsets:   []float64{0},
	}
}

// SetKeyFunc installs the identity function used to carry measurements
// across Configure calls
func (e *Engine[T]) SetKeyFunc(key KeyFunc[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.key = key
}

// Configure replaces the item list and sizing parameters. Negative overscan
// or threshold are treated as zero; a nil estimate uses DefaultItemSize.
func (e *Engine[T]) Configure(items []T, estimate EstimateFunc[T], overscan, threshold int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var previous map[string]float64
	if e.key != nil {
		previous = make(map[string]float64)
		for i, item := range e.items {
			if e.hasMeasured[i] {
				previous[e.key(item)] = e.measured[i]
			}
		}
	}

	n := len(items)
	e.items = append([]T(nil), items...)
	e.estimate = estimate
	e.overscan = max(overscan, 0)
	e.threshold = max(threshold, 0)
	e.estimated = make([]float64, n)
	e.measured = make([]float64, n)
	e.hasMeasured = make([]bool, n)
	e.offsets = make([]float64, n+1)
	e.validThrough = 0

	for i, item := range e.items {
		if estimate != nil {
			e.estimated[i] = sanitize(estimate(item, i))
		} else {
			e.estimated[i] = DefaultItemSize
		}
		if previous != nil {
			if size, ok := previous[e.key(item)]; ok {
				e.measured[i] = size
				e.hasMeasured[i] = true
			}
		}
	}
}

// OnItemMeasured records an item's rendered size. Out-of-range indices are
// ignored since layout callbacks can fire after an item leaves the list.
func (e *Engine[T]) OnItemMeasured(index int, actualSize float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.items) {
		return
	}
	size := sanitize(actualSize)
	if e.hasMeasured[index] && e.measured[index] == size {
		return
	}
	e.measured[index] = size
	e.hasMeasured[index] = true
	if index < e.validThrough {
		e.validThrough = index
	}
}

// OnScroll computes the frame for a scroll offset and viewport length
func (e *Engine[T]) OnScroll(offset, viewportSize float64) Frame[T] {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.items)
	e.ensureOffsets()
	total := e.offsets[n]

	frame := Frame[T]{
		TotalSize:        total,
		ShouldVirtualize: n > 0 && n >= e.threshold,
	}
	if n == 0 {
		frame.RenderList = []RenderItem[T]{}
		return frame
	}

	viewport := sanitize(viewportSize)
	maxOffset := math.Max(0, total-viewport)
	if math.IsInf(offset, 1) {
		offset = maxOffset
	}
	offset = clamp(sanitize(offset), 0, maxOffset)
	frame.ScrollOffset = offset

	frame.VisibleRange = e.visibleRange(offset, viewport)
	if frame.ShouldVirtualize {
		frame.RenderRange = Range{
			Start: max(0, frame.VisibleRange.Start-e.overscan),
			End:   min(n, frame.VisibleRange.End+e.overscan),
		}
	} else {
		frame.RenderRange = Range{Start: 0, End: n}
	}

	frame.RenderList = make([]RenderItem[T], 0, frame.RenderRange.Len())
	for i := frame.RenderRange.Start; i < frame.RenderRange.End; i++ {
		frame.RenderList = append(frame.RenderList, RenderItem[T]{
			Index:       i,
			Item:        e.items[i],
			OffsetStart: e.offsets[i],
			Size:        e.sizeAt(i),
		})
	}
	return frame
}

// visibleRange finds the items whose span intersects [offset, offset+viewport).
// At least one item is always returned so an item taller than the viewport,
// or a zero-length viewport, still renders the item under the offset.
func (e *Engine[T]) visibleRange(offset, viewport float64) Range {
	n := len(e.items)

	start := sort.Search(n, func(i int) bool {
		return e.offsets[i+1] > offset
	})
	if start >= n {
		start = n - 1
	}

	limit := offset + viewport
	end := sort.Search(n, func(i int) bool {
		return e.offsets[i] >= limit
	})
	if end <= start {
		end = start + 1
	}
	return Range{Start: start, End: end}
}

// TotalSize returns the summed size of every item
func (e *Engine[T]) TotalSize() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureOffsets()
	return e.offsets[len(e.items)]
}

// Len returns the number of configured items
func (e *Engine[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// OffsetOf returns the start offset of item index, clamped to the list
func (e *Engine[T]) OffsetOf(index int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureOffsets()
	index = clampInt(index, 0, len(e.items))
	return e.offsets[index]
}

// SizeOf returns the measured size of item index, or its estimate
func (e *Engine[T]) SizeOf(index int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.items) {
		return 0
	}
	return e.sizeAt(index)
}

// IndexAt returns the index of the item covering offset, or -1 when empty
func (e *Engine[T]) IndexAt(offset float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.items)
	if n == 0 {
		return -1
	}
	e.ensureOffsets()
	offset = sanitize(offset)
	i := sort.Search(n, func(i int) bool {
		return e.offsets[i+1] > offset
	})
	return min(i, n-1)
}

// ScrollOffsetFor returns the scroll position that brings item index into
// view with the given alignment, clamped to the scrollable range
func (e *Engine[T]) ScrollOffsetFor(index int, align Align, viewportSize float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.items)
	if n == 0 {
		return 0
	}
	e.ensureOffsets()
	index = clampInt(index, 0, n-1)
	viewport := sanitize(viewportSize)
	start := e.offsets[index]
	size := e.sizeAt(index)

	var target float64
	switch align {
	case AlignCenter:
		target = start + size/2 - viewport/2
	case AlignEnd:
		target = start + size - viewport
	default:
		target = start
	}
	return clamp(target, 0, math.Max(0, e.offsets[n]-viewport))
}

// ensureOffsets extends the prefix sums past the last corrected index
func (e *Engine[T]) ensureOffsets() {
	n := len(e.items)
	for i := e.validThrough; i < n; i++ {
		e.offsets[i+1] = e.offsets[i] + e.sizeAt(i)
	}
	e.validThrough = n
}

func (e *Engine[T]) sizeAt(i int) float64 {
	if e.hasMeasured[i] {
		return e.measured[i]
	}
	return e.estimated[i]
}

// sanitize clamps malformed sizes and offsets to zero
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
