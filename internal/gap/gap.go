package gap

import "sort"

// BlockRange is an inclusive range of block heights.
type BlockRange struct {
	Start uint64
	End   uint64
}

// Blocks returns the number of blocks in the range.
func (r BlockRange) Blocks() uint64 {
	return r.End - r.Start + 1
}

// ComputeMissingRanges returns the maximal runs of absent heights within
// [minHeight, head], oldest first. The checkpointed slice may be unsorted
// and contain duplicates or heights outside the window; both are ignored.
// An empty checkpoint set yields the whole window, full coverage yields nil.
func ComputeMissingRanges(checkpointed []uint64, head, minHeight uint64) []BlockRange {
	if head < minHeight {
		return nil
	}

	inWindow := make([]uint64, 0, len(checkpointed))
	for _, n := range checkpointed {
		if n >= minHeight && n <= head {
			inWindow = append(inWindow, n)
		}
	}

	if len(inWindow) == 0 {
		return []BlockRange{{Start: minHeight, End: head}}
	}

	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i] < inWindow[j] })

	var missing []BlockRange
	next := minHeight

	for _, n := range inWindow {
		if n < next {
			// duplicate
			continue
		}
		if n > next {
			missing = append(missing, BlockRange{Start: next, End: n - 1})
		}
		next = n + 1
	}

	if next <= head {
		missing = append(missing, BlockRange{Start: next, End: head})
	}

	return missing
}

// SplitRange subdivides a range into chunks of at most chunkSize blocks,
// bounding the size of a single eth_getLogs call.
func SplitRange(r BlockRange, chunkSize uint64) []BlockRange {
	if chunkSize == 0 || r.End < r.Start {
		return nil
	}

	chunks := make([]BlockRange, 0, (r.Blocks()+chunkSize-1)/chunkSize)
	for start := r.Start; ; {
		end := start + chunkSize - 1
		if end > r.End || end < start {
			end = r.End
		}
		chunks = append(chunks, BlockRange{Start: start, End: end})

		if end >= r.End {
			break
		}
		start = end + 1
	}

	return chunks
}
