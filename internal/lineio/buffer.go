package lineio

// DefaultInitialCap matches the relay client's historical 1 KiB line buffer.
const DefaultInitialCap = 1024

// Buffer accumulates a line. Capacity always stays strictly greater than
// length so there is room for a terminator, and grows by doubling.
type Buffer struct {
	b []byte
}

func NewBuffer(initialCap int) *Buffer {
	if initialCap < 2 {
		initialCap = DefaultInitialCap
	}
	return &Buffer{b: make([]byte, 0, initialCap)}
}

func (b *Buffer) Append(c byte) {
	b.b = append(b.b, c)
	if len(b.b) >= cap(b.b) {
		grown := make([]byte, len(b.b), 2*cap(b.b))
		copy(grown, b.b)
		b.b = grown
	}
}

func (b *Buffer) Len() int { return len(b.b) }
func (b *Buffer) Cap() int { return cap(b.b) }

// Bytes aliases the buffer contents.
func (b *Buffer) Bytes() []byte { return b.b }

func (b *Buffer) String() string { return string(b.b) }
