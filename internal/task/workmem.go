package task

// Layout lists the sizes of the regions an algorithm carves out of workmem,
// in order.
type Layout []int

// Size is the minimum workmem size for the layout.
func (l Layout) Size() int {
	n := 0
	for _, sz := range l {
		n += sz
	}
	return n
}

// Carve splits buf into the layout's regions. Each region is capped so
// appends cannot spill into its neighbour. buf must hold Size() bytes.
func (l Layout) Carve(buf []byte) [][]byte {
	regions := make([][]byte, len(l))
	off := 0
	for i, sz := range l {
		regions[i] = buf[off : off+sz : off+sz]
		off += sz
	}
	return regions
}

// Carve checks that the task's workmem fits l and returns its regions. On
// failure the task is marked final with ErrWorkmemBufferTooSmall.
func (t *Task) Carve(l Layout) ([][]byte, bool) {
	if !t.RequireWorkmem(l.Size()) {
		return nil, false
	}
	return l.Carve(t.workmem), true
}
