package planner

import (
	"fmt"
	"sort"

	"github.com/launchsignal/orchestrator/domain"
)

// sequenceActions orders actions with Kahn's algorithm over the
// dependency DAG. Among actions whose dependencies are satisfied, ties
// break by (priority asc, estimated duration asc, insertion order).
// A cyclic dependency set is rejected.
//
// Dependencies referencing IDs outside the plan are treated as already
// satisfied, so a plan never deadlocks on an external reference.
func sequenceActions(actions []domain.PlannedAction) ([]domain.PlannedAction, error) {
	if len(actions) == 0 {
		return actions, nil
	}

	index := make(map[string]int, len(actions))
	for i, a := range actions {
		index[a.ID] = i
	}

	// In-degree counts only dependencies that exist in this plan.
	indegree := make([]int, len(actions))
	dependents := make([][]int, len(actions))
	for i, a := range actions {
		for _, dep := range a.Dependencies {
			j, ok := index[dep]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ready := make([]int, 0, len(actions))
	for i := range actions {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]domain.PlannedAction, 0, len(actions))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(x, y int) bool {
			a, b := actions[ready[x]], actions[ready[y]]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			if a.EstimatedDuration != b.EstimatedDuration {
				return a.EstimatedDuration < b.EstimatedDuration
			}
			return ready[x] < ready[y]
		})

		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, actions[next])

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(actions) {
		return nil, fmt.Errorf("cyclic action dependencies")
	}
	return ordered, nil
}
