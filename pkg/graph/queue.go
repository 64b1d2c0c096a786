package graph

import "gitvault/pkg/types"

// queueItem 优先队列元素：世代号、提交时间、ID
type queueItem struct {
	id         types.Hash
	generation uint64
	when       int64
}

// commitHeap 由 less 决定出队顺序的最大堆
type commitHeap struct {
	items []queueItem
	less  func(a, b queueItem) bool
}

func (h *commitHeap) Len() int           { return len(h.items) }
func (h *commitHeap) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *commitHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *commitHeap) Push(x any) {
	h.items = append(h.items, x.(queueItem))
}

func (h *commitHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// byGeneration 世代号大的先出，相同时提交时间新的先出，再按 ID
func byGeneration(a, b queueItem) bool {
	if a.generation != b.generation {
		return a.generation > b.generation
	}
	if a.when != b.when {
		return a.when > b.when
	}
	return a.id < b.id
}

// byGenerationOnly 纯拓扑序，时间不参与
func byGenerationOnly(a, b queueItem) bool {
	if a.generation != b.generation {
		return a.generation > b.generation
	}
	return a.id < b.id
}

// byTime 提交时间新的先出
func byTime(a, b queueItem) bool {
	if a.when != b.when {
		return a.when > b.when
	}
	return a.id < b.id
}
