package capturer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultOffset is the first valid offset in a binlog file, right after its magic header.
const DefaultOffset uint64 = 4

var ErrOffsetRegression = errors.New("binlog offset moved backwards")

// Position is a resume point in the binlog: reading resumes after Offset in Segment.
type Position struct {
	Segment string `json:"segment"`
	Offset  uint64 `json:"offset"`
}

// DefaultPosition lets the server pick the first available binlog file.
func DefaultPosition() Position {
	return Position{Offset: DefaultOffset}
}

// Compare orders positions by segment name, then by offset.
func (p Position) Compare(o Position) int {
	if c := strings.Compare(p.Segment, o.Segment); c != 0 {
		return c
	}
	switch {
	case p.Offset < o.Offset:
		return -1
	case p.Offset > o.Offset:
		return 1
	default:
		return 0
	}
}

func (p Position) String() string {
	return p.Segment + ":" + strconv.FormatUint(p.Offset, 10)
}

// ParsePosition parses the "segment:offset" form produced by String.
func ParsePosition(s string) (Position, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Position{}, fmt.Errorf("invalid position %q: missing offset", s)
	}
	off, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("invalid position %q: %w", s, err)
	}
	return Position{Segment: s[:i], Offset: off}, nil
}

// PositionTracker holds the position of the last emitted row event.
// Reads are lock free; writes come from the stream goroutine only.
type PositionTracker struct {
	cur atomic.Pointer[Position]

	mu sync.Mutex
	// lowest offset accepted in the current segment
	floor uint64
}

func NewPositionTracker(from Position) *PositionTracker {
	t := &PositionTracker{}
	t.Reset(from)
	return t
}

// Reset seeds the tracker for a new stream.
func (t *PositionTracker) Reset(from Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.floor = from.Offset
	t.cur.Store(&from)
}

func (t *PositionTracker) Current() Position {
	return *t.cur.Load()
}

func (t *PositionTracker) Segment() string {
	return t.cur.Load().Segment
}

func (t *PositionTracker) Offset() uint64 {
	return t.cur.Load().Offset
}

// AdvanceOffset moves the offset forward within the current segment.
func (t *PositionTracker) AdvanceOffset(off uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.cur.Load()
	if off < t.floor {
		return fmt.Errorf("%w: %d < %d in %q", ErrOffsetRegression, off, t.floor, cur.Segment)
	}
	t.floor = off
	t.cur.Store(&Position{Segment: cur.Segment, Offset: off})
	return nil
}

// SetSegment switches to the named binlog file. The offset is kept until the
// next row event; offsets in a new file may start over.
func (t *PositionTracker) SetSegment(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.cur.Load()
	if cur.Segment == name {
		return
	}
	t.floor = 0
	t.cur.Store(&Position{Segment: name, Offset: cur.Offset})
}
