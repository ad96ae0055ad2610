package stateres

import (
	"container/heap"
	"slices"

	"github.com/roach88/stateres/internal/event"
)

// Graph maps each node to the nodes it depends on. Dependencies that are
// not keys themselves are nodes without dependencies.
type Graph map[event.EventID][]event.EventID

// SortKey is the tie-break between nodes that are eligible at the same time.
// Higher PowerLevel sorts first, then lower OriginServerTS, then event id.
type SortKey struct {
	PowerLevel     int64
	OriginServerTS int64
}

// KeyFunc returns the sort key of a node.
type KeyFunc func(id event.EventID) (SortKey, error)

// LexicographicalTopologicalSort orders the nodes of graph so that every
// node follows all of its dependencies, picking the smallest eligible node
// by (-PowerLevel, OriginServerTS, id) at each step (Kahn's algorithm).
//
// The result is a total function of graph and key: map iteration order
// never reaches it. A cycle returns a CYCLE_DETECTED *ResolveError.
func LexicographicalTopologicalSort(graph Graph, key KeyFunc) ([]event.EventID, error) {
	deps := make(map[event.EventID]map[event.EventID]struct{}, len(graph))
	for node, ds := range graph {
		set, ok := deps[node]
		if !ok {
			set = make(map[event.EventID]struct{}, len(ds))
			deps[node] = set
		}
		for _, d := range ds {
			set[d] = struct{}{}
			if _, ok := deps[d]; !ok {
				deps[d] = make(map[event.EventID]struct{})
			}
		}
	}

	nodes := make([]event.EventID, 0, len(deps))
	for node := range deps {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)

	keys := make(map[event.EventID]SortKey, len(nodes))
	for _, node := range nodes {
		k, err := key(node)
		if err != nil {
			return nil, err
		}
		keys[node] = k
	}

	pending := make(map[event.EventID]int, len(nodes))
	dependents := make(map[event.EventID][]event.EventID, len(nodes))
	q := &sortQueue{}
	for _, node := range nodes {
		pending[node] = len(deps[node])
		for d := range deps[node] {
			dependents[d] = append(dependents[d], node)
		}
		if pending[node] == 0 {
			heap.Push(q, sortItem{id: node, key: keys[node]})
		}
	}

	sorted := make([]event.EventID, 0, len(nodes))
	for q.Len() > 0 {
		item := heap.Pop(q).(sortItem)
		sorted = append(sorted, item.id)
		for _, dependent := range dependents[item.id] {
			pending[dependent]--
			if pending[dependent] == 0 {
				heap.Push(q, sortItem{id: dependent, key: keys[dependent]})
			}
		}
	}

	if len(sorted) < len(nodes) {
		stuck := make(map[event.EventID]bool)
		for node, n := range pending {
			if n > 0 {
				stuck[node] = true
			}
		}
		return nil, NewCycleError(cycleMembers(deps, stuck))
	}

	return sorted, nil
}

type sortItem struct {
	id  event.EventID
	key SortKey
}

func (a sortItem) less(b sortItem) bool {
	if a.key.PowerLevel != b.key.PowerLevel {
		return a.key.PowerLevel > b.key.PowerLevel
	}
	if a.key.OriginServerTS != b.key.OriginServerTS {
		return a.key.OriginServerTS < b.key.OriginServerTS
	}
	return a.id < b.id
}

// sortQueue is a min-heap of eligible nodes.
type sortQueue []sortItem

func (q sortQueue) Len() int           { return len(q) }
func (q sortQueue) Less(i, j int) bool { return q[i].less(q[j]) }
func (q sortQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *sortQueue) Push(x any) {
	*q = append(*q, x.(sortItem))
}

func (q *sortQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
