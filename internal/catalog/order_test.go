package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegistry(t *testing.T, configs ...TableConfig) *Registry {
	t.Helper()
	reg, err := NewRegistry(testOpts, configs...)
	require.NoError(t, err)
	return reg
}

func TestPipelineOrder_University(t *testing.T) {
	reg := mustRegistry(t,
		table("receipts", "students"),
		table("enrollments", "students", "classes"),
		table("students"),
		table("classes"),
	)

	order, err := reg.PipelineOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"classes", "students", "enrollments", "receipts"}, order)
}

func TestPipelineOrder_AlphabeticalAmongReady(t *testing.T) {
	reg := mustRegistry(t,
		table("zeta"),
		table("alpha"),
		table("beta", "alpha"),
	)

	order, err := reg.PipelineOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, order)
}

func TestPipelineOrder_DependenciesFirst(t *testing.T) {
	reg := mustRegistry(t,
		table("a"),
		table("b", "a"),
		table("c", "b", "a"),
		table("d", "c"),
		table("e"),
		table("f", "e", "d"),
	)

	order, err := reg.PipelineOrder()
	require.NoError(t, err)
	require.Len(t, order, 6)

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, cfg := range reg.All() {
		for _, dep := range cfg.Dependencies {
			assert.Less(t, pos[dep], pos[cfg.TableName], "%s must come before %s", dep, cfg.TableName)
		}
	}
}

func TestPipelineOrder_Cycle(t *testing.T) {
	reg := mustRegistry(t,
		table("a", "c"),
		table("b", "a"),
		table("c", "b"),
		table("d"),
	)

	_, err := reg.PipelineOrder()
	var cyc *CircularDependencyError
	require.ErrorAs(t, err, &cyc)

	require.GreaterOrEqual(t, len(cyc.Cycle), 4)
	assert.Equal(t, cyc.Cycle[0], cyc.Cycle[len(cyc.Cycle)-1])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cyc.Cycle[:len(cyc.Cycle)-1])
	assert.NotContains(t, cyc.Cycle, "d")
}

func TestPipelineOrder_SelfCycle(t *testing.T) {
	reg := mustRegistry(t, table("a", "a"))

	_, err := reg.PipelineOrder()
	var cyc *CircularDependencyError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "a"}, cyc.Cycle)
}

func TestOrderFor_Subset(t *testing.T) {
	reg := mustRegistry(t,
		table("students"),
		table("classes"),
		table("enrollments", "students", "classes"),
	)

	order, err := reg.OrderFor([]string{"enrollments", "students"})
	require.NoError(t, err)
	assert.Equal(t, []string{"students", "enrollments"}, order)

	_, err = reg.OrderFor([]string{"alumni"})
	var notFound *ConfigNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestExecutionLevels(t *testing.T) {
	reg := mustRegistry(t,
		table("receipts", "students"),
		table("enrollments", "students", "classes"),
		table("students"),
		table("classes"),
	)

	levels, err := reg.ExecutionLevels(nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"classes", "students"},
		{"enrollments", "receipts"},
	}, levels)
}
