package raster

// Block is a square window of side Size over a raster.
//
// An anchored block (Raster.Block) views a sub-square of a raster it does not
// own. Reads at or past an edge are clamped to the nearest valid sample and
// writes outside the raster are dropped, so border blocks can always be
// addressed as full squares.
//
// A free-standing block (NewBlock) owns a private size x size raster and is
// used as scratch output for candidate transforms.
type Block struct {
	r    *Raster
	x, y int
	size int
}

// Block returns an anchored view of side size whose top-left corner is (x, y)
func (r *Raster) Block(x, y, size int) *Block {
	if size <= 0 {
		panic("raster: block size must be positive")
	}
	return &Block{r: r, x: x, y: y, size: size}
}

// NewBlock allocates a free-standing, zero-initialized block
func NewBlock(size int) *Block {
	if size <= 0 {
		panic("raster: block size must be positive")
	}
	return &Block{r: New(size, size), size: size}
}

// Size returns the side length of the block
func (b *Block) Size() int { return b.size }

// Origin returns the absolute coordinates of the block's top-left sample
func (b *Block) Origin() (x, y int) { return b.x, b.y }

// At returns the sample at local coordinates (i, j), where i is the column
// and j the row. Coordinates outside the owning raster are projected onto the
// nearest border sample.
func (b *Block) At(i, j int) uint8 {
	x, y := i+b.x, j+b.y
	w, h := b.r.Width(), b.r.Height()

	if x < 0 {
		x = 0
	} else if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= h {
		y = h - 1
	}
	return b.r.At(x, y)
}

// Set writes v at local coordinates (i, j) when they lie inside both the
// block and the owning raster; otherwise the write is silently discarded.
func (b *Block) Set(i, j int, v uint8) {
	if i < 0 || i >= b.size || j < 0 || j >= b.size {
		return
	}
	x, y := i+b.x, j+b.y
	if x < 0 || y < 0 || x >= b.r.Width() || y >= b.r.Height() {
		return
	}
	b.r.Set(x, y, v)
}

// Fill sets every addressable cell of the block to v
func (b *Block) Fill(v uint8) {
	for j := 0; j < b.size; j++ {
		for i := 0; i < b.size; i++ {
			b.Set(i, j, v)
		}
	}
}

// Mean returns the floor of the average of the size*size clamped samples
func (b *Block) Mean() uint8 {
	sum := 0
	for j := 0; j < b.size; j++ {
		for i := 0; i < b.size; i++ {
			sum += int(b.At(i, j))
		}
	}
	return uint8(sum / (b.size * b.size))
}

// Frame draws a one-sample outline of value v along the block's edges
func (b *Block) Frame(v uint8) {
	last := b.size - 1
	for k := 0; k < b.size; k++ {
		b.Set(k, 0, v)
		b.Set(k, last, v)
		b.Set(0, k, v)
		b.Set(last, k, v)
	}
}
