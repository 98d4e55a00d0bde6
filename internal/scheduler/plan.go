package scheduler

import "context"

// PlannedTask is one entry of a dry run.
type PlannedTask struct {
	Key     string
	Reason  string
	Command string
}

// Plan returns the tasks a Run would dispatch, in topological order,
// without executing anything. A task downstream of a planned task is
// planned too, since it will see newer inputs.
func (s *Scheduler) Plan(ctx context.Context) ([]PlannedTask, error) {
	planned := make(map[string]bool)
	var out []PlannedTask

	for _, key := range s.graph.Order() {
		n, _ := s.graph.Node(key)

		var reason string
		if !s.force[key] {
			for _, p := range s.graph.Predecessors(key) {
				if planned[p] {
					reason = "upstream " + p + " will run"
					break
				}
			}
		}
		if reason == "" {
			fp, err := Fingerprint(n)
			if err != nil {
				return nil, err
			}
			reason, err = s.staleness(ctx, n, fp)
			if err != nil {
				return nil, err
			}
		}
		if reason == "" {
			continue
		}

		planned[key] = true
		out = append(out, PlannedTask{Key: key, Reason: reason, Command: n.Command.String()})
	}
	return out, nil
}
