package master

import (
	"fmt"
	"math"
)

// Paging selects the window [First, First+Size) of an ordered result.
type Paging struct {
	First int
	Size  int
}

// PagingAll requests every result.
var PagingAll = Paging{First: 0, Size: math.MaxInt}

// OfIndex builds a paging request for size items starting at first.
func OfIndex(first, size int) Paging { return Paging{First: first, Size: size} }

// OfRange builds a paging request for [first, last).
func OfRange(first, last int) Paging { return Paging{First: first, Size: last - first} }

// Last is the exclusive end of the window, saturating at math.MaxInt.
func (p Paging) Last() int {
	if p.Size > math.MaxInt-p.First {
		return math.MaxInt
	}
	return p.First + p.Size
}

func (p Paging) Validate() error {
	if p.First < 0 || p.Size < 0 {
		return fmt.Errorf("%w: paging [%d,+%d)", ErrInvalidArgument, p.First, p.Size)
	}
	return nil
}

// Clamp restricts the window to [0, total) and returns it as [first, last).
// An empty window has first == last.
func (p Paging) Clamp(total int) (first, last int) {
	first, last = p.First, p.Last()
	if first < 0 {
		first = 0
	}
	if last > total {
		last = total
	}
	if first > last {
		first = last
	}
	return first, last
}

func (p Paging) String() string { return fmt.Sprintf("[%d,%d)", p.First, p.Last()) }
