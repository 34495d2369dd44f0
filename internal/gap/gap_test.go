package gap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeMissingRanges(t *testing.T) {
	tests := []struct {
		name         string
		checkpointed []uint64
		head         uint64
		minHeight    uint64
		expected     []BlockRange
	}{
		{
			name:         "empty checkpoint set yields whole window",
			checkpointed: nil,
			head:         100,
			minHeight:    10,
			expected:     []BlockRange{{Start: 10, End: 100}},
		},
		{
			name:         "full coverage yields nil",
			checkpointed: []uint64{10, 11, 12, 13},
			head:         13,
			minHeight:    10,
			expected:     nil,
		},
		{
			name:         "single gap in the middle",
			checkpointed: []uint64{10, 11, 14, 15},
			head:         15,
			minHeight:    10,
			expected:     []BlockRange{{Start: 12, End: 13}},
		},
		{
			name:         "gap at the start",
			checkpointed: []uint64{13, 14, 15},
			head:         15,
			minHeight:    10,
			expected:     []BlockRange{{Start: 10, End: 12}},
		},
		{
			name:         "gap at the head",
			checkpointed: []uint64{10, 11, 12},
			head:         15,
			minHeight:    10,
			expected:     []BlockRange{{Start: 13, End: 15}},
		},
		{
			name:         "multiple gaps oldest first",
			checkpointed: []uint64{12, 15, 20},
			head:         22,
			minHeight:    10,
			expected: []BlockRange{
				{Start: 10, End: 11},
				{Start: 13, End: 14},
				{Start: 16, End: 19},
				{Start: 21, End: 22},
			},
		},
		{
			name:         "unsorted input with duplicates",
			checkpointed: []uint64{15, 10, 11, 11, 15, 14},
			head:         15,
			minHeight:    10,
			expected:     []BlockRange{{Start: 12, End: 13}},
		},
		{
			name:         "heights outside window ignored",
			checkpointed: []uint64{5, 6, 10, 11, 200},
			head:         12,
			minHeight:    10,
			expected:     []BlockRange{{Start: 12, End: 12}},
		},
		{
			name:         "head below min height",
			checkpointed: nil,
			head:         5,
			minHeight:    10,
			expected:     nil,
		},
		{
			name:         "single block window missing",
			checkpointed: nil,
			head:         10,
			minHeight:    10,
			expected:     []BlockRange{{Start: 10, End: 10}},
		},
		{
			name:         "single block window covered",
			checkpointed: []uint64{10},
			head:         10,
			minHeight:    10,
			expected:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeMissingRanges(tt.checkpointed, tt.head, tt.minHeight)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestSplitRange(t *testing.T) {
	tests := []struct {
		name      string
		r         BlockRange
		chunkSize uint64
		expected  []BlockRange
	}{
		{
			name:      "range smaller than chunk",
			r:         BlockRange{Start: 10, End: 15},
			chunkSize: 100,
			expected:  []BlockRange{{Start: 10, End: 15}},
		},
		{
			name:      "exact multiple",
			r:         BlockRange{Start: 0, End: 199},
			chunkSize: 100,
			expected: []BlockRange{
				{Start: 0, End: 99},
				{Start: 100, End: 199},
			},
		},
		{
			name:      "remainder chunk",
			r:         BlockRange{Start: 10, End: 35},
			chunkSize: 10,
			expected: []BlockRange{
				{Start: 10, End: 19},
				{Start: 20, End: 29},
				{Start: 30, End: 35},
			},
		},
		{
			name:      "single block",
			r:         BlockRange{Start: 7, End: 7},
			chunkSize: 10,
			expected:  []BlockRange{{Start: 7, End: 7}},
		},
		{
			name:      "chunk size one",
			r:         BlockRange{Start: 1, End: 3},
			chunkSize: 1,
			expected: []BlockRange{
				{Start: 1, End: 1},
				{Start: 2, End: 2},
				{Start: 3, End: 3},
			},
		},
		{
			name:      "zero chunk size",
			r:         BlockRange{Start: 1, End: 3},
			chunkSize: 0,
			expected:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, SplitRange(tt.r, tt.chunkSize))
		})
	}
}

func TestBlockRange_Blocks(t *testing.T) {
	require.Equal(t, uint64(1), BlockRange{Start: 5, End: 5}.Blocks())
	require.Equal(t, uint64(11), BlockRange{Start: 10, End: 20}.Blocks())
}
