package deque

// Direction fixes which way a Cursor moves on Next.
type Direction int

const (
	// Forward cursors move toward higher indices on Next.
	Forward Direction = iota
	// Backward cursors move toward lower indices on Next.
	Backward
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "Forward"
	case Backward:
		return "Backward"
	default:
		return "Unknown"
	}
}

// Cursor is an index into [0, size) that wraps at both ends.
// It is a plain value; copying a Cursor copies its position.
type Cursor struct {
	pos  int
	size int
	dir  Direction
}

// NewCursor creates a cursor at pos over size slots moving in dir.
// Out-of-range input is clamped: size < 1 becomes 1, pos >= size becomes
// size-1 and pos < 0 becomes 0.
func NewCursor(pos, size int, dir Direction) Cursor {
	if size < 1 {
		size = 1
	}
	if pos >= size {
		pos = size - 1
	}
	if pos < 0 {
		pos = 0
	}
	return Cursor{pos: pos, size: size, dir: dir}
}

// Pos returns the current index.
func (c Cursor) Pos() int {
	return c.pos
}

// Size returns the number of slots the cursor wraps over.
func (c Cursor) Size() int {
	return c.size
}

// Direction returns the direction fixed at construction.
func (c Cursor) Direction() Direction {
	return c.dir
}

// Next moves one step in the cursor's direction.
func (c *Cursor) Next() {
	c.Advance(1)
}

// Prev moves one step against the cursor's direction.
func (c *Cursor) Prev() {
	c.Retreat(1)
}

// Advance moves n steps in the cursor's direction. Negative n retreats.
func (c *Cursor) Advance(n int) {
	if c.dir == Backward {
		n = -n
	}
	c.step(n)
}

// Retreat moves n steps against the cursor's direction.
func (c *Cursor) Retreat(n int) {
	c.Advance(-n)
}

func (c *Cursor) step(n int) {
	if c.size <= 1 {
		c.pos = 0
		return
	}
	n %= c.size
	pos := c.pos + n
	if pos >= c.size {
		pos -= c.size
	} else if pos < 0 {
		pos += c.size
	}
	c.pos = pos
}
