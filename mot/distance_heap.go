package mot

// rowCandidate is a candidate coordinate remembered with its input position
type rowCandidate struct {
	point Point
	index int
}

// Copied from container/heap - https://golang.org/pkg/container/heap/
// Why make copy? Just want to avoid type conversion

// rowHeap is min-heap by Y, ties broken by input position
type rowHeap []*rowCandidate

func newRowHeap(points []Point) rowHeap {
	h := make(rowHeap, 0, len(points))
	for i := range points {
		h.Push(&rowCandidate{point: points[i], index: i})
	}
	return h
}

func (h rowHeap) Len() int { return len(h) }
func (h rowHeap) Less(i, j int) bool {
	if h[i].point.Y != h[j].point.Y {
		return h[i].point.Y < h[j].point.Y
	}
	return h[i].index < h[j].index
}
func (h rowHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Peek returns the minimum element without removing it
func (h rowHeap) Peek() *rowCandidate {
	return h[0]
}

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *rowHeap) Push(x *rowCandidate) {
	*h = append(*h, x)
	h.up(h.Len() - 1)
}

// Pop removes and returns the minimum element (according to Less) from the heap.
// The complexity is O(log n) where n = h.Len().
// Pop is equivalent to Remove(h, 0).
func (h *rowHeap) Pop() *rowCandidate {
	n := h.Len() - 1
	h.Swap(0, n)
	h.down(0, n)
	heapSize := len(*h)
	lastNode := (*h)[heapSize-1]
	*h = (*h)[0 : heapSize-1]
	return lastNode
}

func (h rowHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func (h rowHeap) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
	return i > i0
}
