package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/keel/pkg/domain"
)

// Overlay contains runtime data to highlight on the diagram.
type Overlay struct {
	Visited []domain.State
	Current *domain.State
}

// edgeLabels names the trigger of the regular lifecycle edges.
var edgeLabels = map[domain.State]string{
	domain.StateConstructing:         "New",
	domain.StateLoadingModules:       "modules loaded",
	domain.StateRunningLaunchActions: "launch ok",
	domain.StateReady:                "Run()",
	domain.StateRunningRunActions:    "run ok",
	domain.StateShuttingDown:         "shutdown actions drained",
}

// GenerateMermaid produces a Mermaid flowchart of the controller lifecycle.
// It applies semantic styling:
// - Entry and final states: ((Circle))
// - States waiting on the host (ready, running): [/Parallelogram/]
// - States executing actions: [[Subroutine]]
// Shutdown edges, available from every non-final state, are dotted.
func GenerateMermaid(overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	states := domain.States()
	for _, s := range states {
		opener, closer := "[", "]"
		switch s {
		case domain.StateConstructing, domain.StateTerminated:
			opener, closer = "((", "))"
		case domain.StateReady, domain.StateRunning:
			opener, closer = "[/", "/]"
		case domain.StateRunningLaunchActions, domain.StateRunningRunActions, domain.StateShuttingDown:
			opener, closer = "[[", "]]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", s, opener, s, closer))
	}

	for _, from := range states {
		for _, to := range states {
			if !from.CanTransition(to) {
				continue
			}
			if to == domain.StateShuttingDown {
				sb.WriteString(fmt.Sprintf("    %s -. ⚡ shutdown .-> %s\n", from, to))
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", from, edgeLabels[from], to))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[domain.State]bool)
		for _, s := range overlay.Visited {
			if !seen[s] {
				seen[s] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", s))
			}
		}
		if overlay.Current != nil {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", *overlay.Current))
		}
	}

	return sb.String()
}

// Trail returns the states of the regular lifecycle path that precede current.
// A controller shutting down may have left the path earlier; the trail is then
// the longest prefix it could have visited.
func Trail(current domain.State) []domain.State {
	var trail []domain.State
	for _, s := range domain.States() {
		if s == current || s.IsFinal() {
			break
		}
		trail = append(trail, s)
	}
	return trail
}
