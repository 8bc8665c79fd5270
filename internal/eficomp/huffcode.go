// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

import (
	"container/heap"
	"slices"
)

// huffLengths returns Huffman code lengths of at most maxLen bits for the
// symbols with nonzero frequency. When fewer than two symbols are used, every
// length is zero and the caller must use the single-code encoding instead.
func huffLengths(freq []uint32, maxLen int) []uint8 {
	lens := make([]uint8, len(freq))

	var used []int
	for sym, f := range freq {
		if f != 0 {
			used = append(used, sym)
		}
	}
	if len(used) < 2 {
		return lens
	}

	// Plain Huffman tree, recording only each node's parent
	h := &weightHeap{}
	for _, sym := range used {
		h.weight = append(h.weight, uint64(freq[sym]))
		h.parent = append(h.parent, -1)
		h.order = append(h.order, len(h.order))
	}
	heap.Init(h)
	for h.Len() > 1 {
		a := heap.Pop(h).(int)
		b := heap.Pop(h).(int)
		n := len(h.weight)
		h.weight = append(h.weight, h.weight[a]+h.weight[b])
		h.parent = append(h.parent, -1)
		h.parent[a], h.parent[b] = n, n
		heap.Push(h, n)
	}

	lenCounts := make([]int, max(len(used), maxLen+1))
	for leaf := range used {
		depth := 0
		for n := leaf; h.parent[n] != -1; n = h.parent[n] {
			depth++
		}
		lenCounts[depth]++
	}
	enforceMaxLen(lenCounts, maxLen)

	// Shortest codes go to the most frequent symbols
	slices.SortStableFunc(used, func(a, b int) int {
		switch {
		case freq[a] > freq[b]:
			return -1
		case freq[a] < freq[b]:
			return 1
		}
		return 0
	})
	i := 0
	for l := 1; l <= maxLen; l++ {
		for range lenCounts[l] {
			lens[used[i]] = uint8(l)
			i++
		}
	}
	return lens
}

// enforceMaxLen folds the lengths longer than maxLen back into a complete
// code: sum(lenCounts[l] * 2^(maxLen-l)) must equal 2^maxLen.
func enforceMaxLen(lenCounts []int, maxLen int) {
	for l := maxLen + 1; l < len(lenCounts); l++ {
		lenCounts[maxLen] += lenCounts[l]
		lenCounts[l] = 0
	}

	total := 0
	for l := 1; l <= maxLen; l++ {
		total += lenCounts[l] << (maxLen - l)
	}
	for total != 1<<maxLen {
		// Lengthen a shorter code to make room for one of the longest
		lenCounts[maxLen]--
		for l := maxLen - 1; l > 0; l-- {
			if lenCounts[l] != 0 {
				lenCounts[l]--
				lenCounts[l+1] += 2
				break
			}
		}
		total--
	}
}

// canonicalCodes assigns codes in the same order as table.build: shorter
// codes first, and within one length in increasing symbol order.
func canonicalCodes(lens []uint8) []uint16 {
	var count [codeBit + 1]int
	for _, l := range lens {
		count[l]++
	}
	var start [codeBit + 2]int
	for l := 1; l <= codeBit; l++ {
		start[l+1] = start[l] + count[l]<<(codeBit-l)
	}

	codes := make([]uint16, len(lens))
	for sym, l := range lens {
		if l == 0 {
			continue
		}
		codes[sym] = uint16(start[l] >> (codeBit - int(l)))
		start[l] += 1 << (codeBit - int(l))
	}
	return codes
}

type weightHeap struct {
	weight []uint64
	parent []int
	order  []int // heap of node indices
}

func (h *weightHeap) Len() int { return len(h.order) }
func (h *weightHeap) Less(i, j int) bool {
	a, b := h.order[i], h.order[j]
	if h.weight[a] != h.weight[b] {
		return h.weight[a] < h.weight[b]
	}
	return a < b
}
func (h *weightHeap) Swap(i, j int) { h.order[i], h.order[j] = h.order[j], h.order[i] }
func (h *weightHeap) Push(x any)   { h.order = append(h.order, x.(int)) }
func (h *weightHeap) Pop() any {
	n := h.order[len(h.order)-1]
	h.order = h.order[:len(h.order)-1]
	return n
}
