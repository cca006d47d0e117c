package model

import "sort"

// SortColumn selects the comparison key for sibling ordering.
type SortColumn int

const (
	SortByName SortColumn = iota
	SortBySize
	SortByBlocks
	SortByItems
	SortByMtime
)

// SortOrder selects ascending or descending order.
type SortOrder int

const (
	SortAsc SortOrder = iota
	SortDesc
)

// SortConfig holds sort preferences.
type SortConfig struct {
	Column SortColumn
	Order  SortOrder
	// DirsFirst keeps directory-like entries before files regardless of
	// the chosen column.
	DirsFirst bool
	// Natural compares embedded digit runs numerically in name sorts.
	Natural bool
}

// DefaultSort returns size descending with natural name comparison.
func DefaultSort() SortConfig {
	return SortConfig{
		Column:  SortBySize,
		Order:   SortDesc,
		Natural: true,
	}
}

// Compare orders two sibling entries under cfg. The result is a valid
// total order for any input: the dirs-first discriminator is evaluated
// first and short-circuits the column comparison, and the order flag
// reverses the final result.
func Compare(a, b *Entry, cfg SortConfig) int {
	if cfg.DirsFirst {
		aDir, bDir := a.IsDir(), b.IsDir()
		if aDir != bDir {
			if aDir {
				return -1
			}
			return 1
		}
	}

	var cmp int
	switch cfg.Column {
	case SortByName:
		if cfg.Natural {
			cmp = NaturalCompare(a.Name, b.Name)
		} else {
			cmp = compareStrings(a.Name, b.Name)
		}
	case SortBySize:
		cmp = compareInt64(a.TotalSize(), b.TotalSize())
	case SortByBlocks:
		cmp = compareInt64(a.TotalBlocks(), b.TotalBlocks())
	case SortByItems:
		cmp = compareInt64(a.TotalItems(), b.TotalItems())
	case SortByMtime:
		cmp = compareMtime(a, b)
	}

	if cfg.Order == SortDesc {
		return -cmp
	}
	return cmp
}

// SortEntries orders siblings in place. Must run before the tree is
// published to concurrent readers.
func SortEntries(entries []*Entry, cfg SortConfig) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Compare(entries[i], entries[j], cfg) < 0
	})
}

// NaturalCompare orders strings byte-for-byte except that runs of ASCII
// digits compare as unsigned integers, so "file2" sorts before "file10".
// Digit runs accumulate with saturating arithmetic: a pathologically long
// run clamps at the maximum uint64 instead of overflowing.
func NaturalCompare(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			var na, nb uint64
			na, i = takeNumber(a, i)
			nb, j = takeNumber(b, j)
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			continue
		}
		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		i++
		j++
	}
	switch {
	case i < len(a):
		return 1
	case j < len(b):
		return -1
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// takeNumber parses the digit run starting at i, saturating at the
// maximum uint64, and returns the value and the index past the run.
func takeNumber(s string, i int) (uint64, int) {
	const maxUint64 = ^uint64(0)
	var n uint64
	for i < len(s) && isDigit(s[i]) {
		d := uint64(s[i] - '0')
		if n > (maxUint64-d)/10 {
			n = maxUint64
		} else {
			n = n*10 + d
		}
		i++
	}
	return n, i
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareMtime orders by collected modification time. An entry without a
// timestamp sorts before any entry with one; two absent timestamps are
// equal.
func compareMtime(a, b *Entry) int {
	at, aok := a.Mtime()
	bt, bok := b.Mtime()
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	case at.Before(bt):
		return -1
	case at.After(bt):
		return 1
	}
	return 0
}
