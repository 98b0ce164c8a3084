package lifecycle

import (
	"fmt"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

// planStep records how a state was first reached during the BFS: which
// command was issued, and from which predecessor state.
type planStep struct {
	cmd  Command
	prev State
}

// Plan computes the command sequence that, applied in order starting
// from `from`, reaches `to`. It never routes a path through a
// deliberate fault transition: Plan answers "how do I get there the
// normal way", not "how do I get there via Fault". Returns an empty
// sequence if from == to, and an error if to is Fault or Invalid (those
// states are not planning targets) or genuinely unreachable.
func Plan(from, to State) ([]Command, error) {
	if to == Invalid || to == Fault {
		return nil, fmt.Errorf("%s is not a valid planning target: %w", to, salerr.State)
	}
	if from == to {
		return nil, nil
	}

	visited := map[State]planStep{from: {}}
	queue := []State{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range edges {
			if e.from != cur || e.to == Fault {
				continue
			}
			if _, seen := visited[e.to]; seen {
				continue
			}
			visited[e.to] = planStep{cmd: e.cmd, prev: cur}
			if e.to == to {
				return backtrack(visited, from, to), nil
			}
			queue = append(queue, e.to)
		}
	}

	return nil, fmt.Errorf("no transition path from %s to %s: %w", from, to, salerr.State)
}

func backtrack(visited map[State]planStep, from, to State) []Command {
	var reversed []Command
	for s := to; s != from; {
		st := visited[s]
		reversed = append(reversed, st.cmd)
		s = st.prev
	}
	cmds := make([]Command, len(reversed))
	for i, c := range reversed {
		cmds[len(reversed)-1-i] = c
	}
	return cmds
}
