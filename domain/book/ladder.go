package book

// Level is one price level on one side of a book: a FIFO chain of
// arena slots. Lead is the oldest (highest priority) order, End the
// newest. Following Next links from Lead visits orders in strict
// arrival order.
type Level struct {
	Lead Slot
	End  Slot
}

// lessAggressive orders resting prices on one side: for a bid ladder
// it is `<`, for an ask ladder `>`. Both sides keep the most
// aggressive level at the tail so the same traversal code serves
// both.
type lessAggressive func(a, b int64) bool

func bidLess(a, b int64) bool { return a < b }
func askLess(a, b int64) bool { return a > b }

// ladder is the ordered level sequence for one side. Index 0 is the
// least aggressive level, the tail the most aggressive.
type ladder struct {
	levels []Level
}

func (l *ladder) Len() int { return len(l.levels) }

// Best returns the most aggressive level.
func (l *ladder) Best() *Level { return &l.levels[len(l.levels)-1] }

func (l *ladder) At(i int) *Level { return &l.levels[i] }

// PopBest removes the most aggressive level. Any chain still hanging
// off it is queued for deferred reclamation rather than freed inline.
func (l *ladder) PopBest(mem *Arena) {
	lvl := l.levels[len(l.levels)-1]
	mem.DropChain(lvl.Lead)
	l.levels = l.levels[:len(l.levels)-1]
}

// findInsertion scans linearly from the most aggressive end until the
// scanned level is no more aggressive than price. It returns the
// index where a new level belongs and whether an existing level at
// that exact price was found (the tie rule: exact match reuses the
// level).
func (l *ladder) findInsertion(mem *Arena, price int64, less lessAggressive) (idx int, exact bool) {
	i := len(l.levels) - 1
	for i >= 0 && less(price, mem.At(l.levels[i].Lead).Price) {
		i--
	}
	if i >= 0 && mem.At(l.levels[i].Lead).Price == price {
		return i, true
	}
	return i + 1, false
}

// insertAt places a new level at idx, keeping the aggression order.
func (l *ladder) insertAt(idx int, lvl Level) {
	l.levels = append(l.levels, Level{})
	copy(l.levels[idx+1:], l.levels[idx:])
	l.levels[idx] = lvl
}

// each visits levels from most to least aggressive.
func (l *ladder) each(fn func(*Level) bool) {
	for i := len(l.levels) - 1; i >= 0; i-- {
		if !fn(&l.levels[i]) {
			return
		}
	}
}
