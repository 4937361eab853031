package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrflow/internal/ir"
)

func transformer(name, entity, source, target string) ir.EnricherSpec {
	return ir.EnricherSpec{
		Name:      name,
		Kind:      ir.EnricherTransformer,
		Entity:    entity,
		Source:    source,
		Target:    target,
		Computing: "in",
	}
}

// TestAnalyzeCycles_Empty tests that empty input produces no warnings.
func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
	assert.Empty(t, AnalyzeCycles(&ir.Topology{}))
}

// TestAnalyzeCycles_Chain tests that a chain a → b → c produces no warnings.
func TestAnalyzeCycles_Chain(t *testing.T) {
	topo := &ir.Topology{Enrichers: []ir.EnricherSpec{
		transformer("ab", "app", "a", "b"),
		transformer("bc", "app", "b", "c"),
		transformer("bd", "app", "b", "d"),
	}}
	assert.Empty(t, AnalyzeCycles(topo))
}

// TestAnalyzeCycles_SelfLoop tests detection of an enricher feeding itself.
func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	topo := &ir.Topology{Enrichers: []ir.EnricherSpec{
		transformer("inc", "app", "n", "n"),
	}}

	warnings := AnalyzeCycles(topo)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"inc", "inc"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "Self-triggering")
	assert.Equal(t, "warning", warnings[0].Level)
}

// TestAnalyzeCycles_TwoNodeCycle tests detection of x → y → x.
func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	topo := &ir.Topology{Enrichers: []ir.EnricherSpec{
		transformer("y", "app", "b", "a"),
		transformer("x", "app", "a", "b"),
	}}

	warnings := AnalyzeCycles(topo)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"x", "y", "x"}, warnings[0].Path)
	assert.Equal(t, "Potential propagation cycle detected: x → y → x", warnings[0].Message)
}

// TestAnalyzeCycles_EntityMatters tests that the same sensor names on
// different entities do not form a cycle.
func TestAnalyzeCycles_EntityMatters(t *testing.T) {
	topo := &ir.Topology{Enrichers: []ir.EnricherSpec{
		transformer("x", "app", "a", "b"),
		transformer("y", "web", "b", "a"),
	}}
	assert.Empty(t, AnalyzeCycles(topo))
}

// TestAnalyzeCycles_ProducerEdge tests cycles that cross entities through
// an explicit producer.
func TestAnalyzeCycles_ProducerEdge(t *testing.T) {
	up := transformer("up", "parent", "load", "total")
	up.Producer = "child"
	down := transformer("down", "child", "total", "load")
	down.Producer = "parent"

	warnings := AnalyzeCycles(&ir.Topology{Enrichers: []ir.EnricherSpec{up, down}})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"down", "up", "down"}, warnings[0].Path)
}

// TestAnalyzeCycles_CombinerAndMap tests that every source of a combiner
// is an edge, and that updating maps sharing a target all feed its readers.
func TestAnalyzeCycles_CombinerAndMap(t *testing.T) {
	topo := &ir.Topology{Enrichers: []ir.EnricherSpec{
		{Name: "count_a", Kind: ir.EnricherUpdatingMap, Entity: "app", Source: "a", Target: "counts", Computing: "in"},
		{Name: "count_b", Kind: ir.EnricherUpdatingMap, Entity: "app", Source: "b", Target: "counts", Computing: "in"},
		{Name: "mix", Kind: ir.EnricherCombiner, Entity: "app", Sources: []string{"counts", "c"}, Target: "b", Computing: "in"},
	}}

	warnings := AnalyzeCycles(topo)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"count_b", "mix", "count_b"}, warnings[0].Path)
}

// TestAnalyzeCycles_MultipleCyclesSorted tests deterministic ordering.
func TestAnalyzeCycles_MultipleCyclesSorted(t *testing.T) {
	topo := &ir.Topology{Enrichers: []ir.EnricherSpec{
		transformer("z1", "app", "p", "q"),
		transformer("z2", "app", "q", "p"),
		transformer("a1", "app", "m", "m"),
	}}

	for range 5 {
		warnings := AnalyzeCycles(topo)
		require.Len(t, warnings, 2)
		assert.Equal(t, []string{"a1", "a1"}, warnings[0].Path)
		assert.Equal(t, []string{"z1", "z2", "z1"}, warnings[1].Path)
	}
}

func TestTarjanSCC_ThreeNodeCycle(t *testing.T) {
	graph := feedGraph{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {},
	}

	sccs := tarjanSCC(graph)
	require.Len(t, sccs, 2)
	assert.Contains(t, sccs, []string{"a", "b", "c"})
	assert.Contains(t, sccs, []string{"d"})

	assert.Equal(t, []string{"a", "b", "c", "a"}, reconstructCyclePath([]string{"a", "b", "c"}, graph))
}
