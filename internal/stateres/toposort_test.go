package stateres

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stateres/internal/event"
)

func keysFrom(m map[event.EventID]SortKey) KeyFunc {
	return func(id event.EventID) (SortKey, error) {
		return m[id], nil
	}
}

func TestLexicographicalTopologicalSort_EdgeFreeOrdersByKey(t *testing.T) {
	graph := Graph{"$a": nil, "$b": nil, "$c": nil, "$d": nil, "$e": nil}
	keys := map[event.EventID]SortKey{
		"$a": {PowerLevel: 0, OriginServerTS: 1},
		"$b": {PowerLevel: 100, OriginServerTS: 9},
		"$c": {PowerLevel: 50, OriginServerTS: 3},
		"$d": {PowerLevel: 50, OriginServerTS: 2},
		"$e": {PowerLevel: 50, OriginServerTS: 2},
	}

	sorted, err := LexicographicalTopologicalSort(graph, keysFrom(keys))
	require.NoError(t, err)
	assert.Equal(t, []event.EventID{"$b", "$d", "$e", "$c", "$a"}, sorted)
}

func TestLexicographicalTopologicalSort_DependenciesFirst(t *testing.T) {
	// l depends on p, p depends on o: o must come first even though l and p
	// have higher power.
	graph := Graph{
		"$l": {"$o", "$p"},
		"$p": {"$o"},
		"$o": {},
		"$x": {},
	}
	keys := map[event.EventID]SortKey{
		"$l": {PowerLevel: 100},
		"$p": {PowerLevel: 100},
		"$o": {PowerLevel: 0},
		"$x": {PowerLevel: 10},
	}

	sorted, err := LexicographicalTopologicalSort(graph, keysFrom(keys))
	require.NoError(t, err)
	assert.Equal(t, []event.EventID{"$x", "$o", "$p", "$l"}, sorted)
}

func TestLexicographicalTopologicalSort_ImplicitNodes(t *testing.T) {
	graph := Graph{"$child": {"$root", "$root"}}
	sorted, err := LexicographicalTopologicalSort(graph, keysFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, []event.EventID{"$root", "$child"}, sorted)
}

func TestLexicographicalTopologicalSort_Empty(t *testing.T) {
	sorted, err := LexicographicalTopologicalSort(Graph{}, keysFrom(nil))
	require.NoError(t, err)
	assert.Empty(t, sorted)
}

func TestLexicographicalTopologicalSort_Deterministic(t *testing.T) {
	graph := Graph{}
	keys := map[event.EventID]SortKey{}
	ids := []event.EventID{"$a", "$b", "$c", "$d", "$e", "$f", "$g", "$h"}
	for i, id := range ids {
		keys[id] = SortKey{PowerLevel: int64(i % 3), OriginServerTS: int64(i % 2)}
		if i > 1 {
			graph[id] = []event.EventID{ids[i/2]}
		} else {
			graph[id] = nil
		}
	}

	first, err := LexicographicalTopologicalSort(graph, keysFrom(keys))
	require.NoError(t, err)
	for range 50 {
		again, err := LexicographicalTopologicalSort(graph, keysFrom(keys))
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestLexicographicalTopologicalSort_Cycle(t *testing.T) {
	graph := Graph{
		"$a":    {"$b"},
		"$b":    {"$c"},
		"$c":    {"$a"},
		"$tail": {"$a"},
		"$ok":   {},
	}

	_, err := LexicographicalTopologicalSort(graph, keysFrom(nil))
	require.Error(t, err)
	assert.True(t, IsCycleDetected(err))

	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, []event.EventID{"$a", "$b", "$c"}, re.Cycle)
}

func TestLexicographicalTopologicalSort_SelfLoop(t *testing.T) {
	_, err := LexicographicalTopologicalSort(Graph{"$a": {"$a"}}, keysFrom(nil))

	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeCycleDetected, re.Code)
	assert.Equal(t, []event.EventID{"$a"}, re.Cycle)
}

func TestLexicographicalTopologicalSort_KeyError(t *testing.T) {
	boom := errors.New("boom")
	_, err := LexicographicalTopologicalSort(Graph{"$a": nil}, func(event.EventID) (SortKey, error) {
		return SortKey{}, boom
	})
	assert.ErrorIs(t, err, boom)
}
