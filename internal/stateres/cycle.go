package stateres

import (
	"slices"

	"github.com/roach88/stateres/internal/event"
)

// cycleMembers returns, sorted, the nodes among candidates that lie on a
// cycle: members of a strongly connected component with more than one node,
// or with a self-loop. candidates are the nodes Kahn's algorithm could not
// place, which always include at least one cycle; nodes merely downstream
// of a cycle are left out.
func cycleMembers(deps map[event.EventID]map[event.EventID]struct{}, candidates map[event.EventID]bool) []event.EventID {
	var members []event.EventID
	for _, scc := range tarjanSCC(deps, candidates) {
		if len(scc) > 1 || hasSelfLoop(scc[0], deps) {
			members = append(members, scc...)
		}
	}
	slices.Sort(members)
	return members
}

func hasSelfLoop(node event.EventID, deps map[event.EventID]map[event.EventID]struct{}) bool {
	_, ok := deps[node][node]
	return ok
}

// tarjanSCC finds the strongly connected components of the subgraph induced
// by the candidate nodes. Nodes and edges are visited in sorted order.
func tarjanSCC(deps map[event.EventID]map[event.EventID]struct{}, candidates map[event.EventID]bool) [][]event.EventID {
	var (
		index   = 0
		stack   []event.EventID
		indices = make(map[event.EventID]int)
		lowlink = make(map[event.EventID]int)
		onStack = make(map[event.EventID]bool)
		sccs    [][]event.EventID
	)

	successors := func(v event.EventID) []event.EventID {
		out := make([]event.EventID, 0, len(deps[v]))
		for w := range deps[v] {
			if candidates[w] {
				out = append(out, w)
			}
		}
		slices.Sort(out)
		return out
	}

	var strongConnect func(event.EventID)
	strongConnect = func(v event.EventID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range successors(v) {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []event.EventID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]event.EventID, 0, len(candidates))
	for node := range candidates {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}
