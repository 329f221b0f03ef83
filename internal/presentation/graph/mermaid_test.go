package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/keel/internal/presentation/graph"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	for _, want := range []string{
		`constructing(("constructing"))`,
		`terminated(("terminated"))`,
		`ready[/"ready"/]`,
		`running_launch_actions[["running_launch_actions"]]`,
		`loading_modules["loading_modules"]`,
		`ready -- "Run()" --> running_run_actions`,
		`shutting_down -- "shutdown actions drained" --> terminated`,
		`running -. ⚡ shutdown .-> shutting_down`,
		`constructing -. ⚡ shutdown .-> shutting_down`,
	} {
		assert.Contains(t, out, want)
	}

	assert.NotContains(t, out, "terminated -. ⚡ shutdown")
	assert.NotContains(t, out, "Overlay Styles")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	current := domain.StateReady
	out := graph.GenerateMermaid(&graph.Overlay{
		Visited: append(graph.Trail(current), domain.StateConstructing),
		Current: &current,
	})

	assert.Contains(t, out, "class ready current;")
	assert.Contains(t, out, "class running_launch_actions visited;")
	assert.Equal(t, 1, strings.Count(out, "class constructing visited;"))
	assert.NotContains(t, out, "class running visited;")
}

func TestTrail(t *testing.T) {
	assert.Empty(t, graph.Trail(domain.StateConstructing))
	assert.Equal(t, []domain.State{
		domain.StateConstructing,
		domain.StateLoadingModules,
		domain.StateRunningLaunchActions,
	}, graph.Trail(domain.StateReady))
	assert.Len(t, graph.Trail(domain.StateTerminated), 6)
}
