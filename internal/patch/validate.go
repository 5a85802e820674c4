package patch

import (
	"fmt"
	"sort"
	"strings"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
)

// Validate checks a set's structure and its dependency ordering. It runs
// once, before any document is read; a non-nil error is fatal for the run.
//
// Checks, in order:
//   - structure: ids, documents, anchors, kinds, links
//   - references: every depends_on entry names a patch in the set
//   - preconditions: every 'when' expression compiles
//   - cycles: the depends_on graph is acyclic (E_DEPENDENCY_CYCLE)
//   - ordering: every dependency precedes its dependent (E_ORDERING_VIOLATION)
func Validate(s *Set) error {
	if err := validateStructure(s); err != nil {
		return err
	}
	if err := validateReferences(s); err != nil {
		return err
	}
	if err := validateConditions(s); err != nil {
		return err
	}
	if cycle := findCycle(s); cycle != nil {
		return perrors.NewWithDetails(perrors.EDependencyCycle,
			fmt.Sprintf("patch set %s has a dependency cycle: %s", s.Label(), strings.Join(cycle, " -> ")),
			map[string]string{"set": s.Label(), "cycle": strings.Join(cycle, ",")})
	}
	return validateOrder(s)
}

func validateStructure(s *Set) error {
	if len(s.Patches) == 0 {
		return invalid(s, "patch set has no patches", nil)
	}

	seen := make(map[string]int, len(s.Patches))
	for i, p := range s.Patches {
		where := map[string]string{"index": fmt.Sprint(i)}
		if strings.TrimSpace(p.ID) == "" {
			return invalid(s, fmt.Sprintf("patch #%d has no id", i), where)
		}
		where["patch"] = p.ID
		if prev, dup := seen[p.ID]; dup {
			return invalid(s, fmt.Sprintf("patch id %q is used by #%d and #%d", p.ID, prev, i), where)
		}
		seen[p.ID] = i

		if strings.TrimSpace(p.Document) == "" {
			return invalid(s, fmt.Sprintf("patch %q has no target document", p.ID), where)
		}
		if p.Anchor == "" {
			return invalid(s, fmt.Sprintf("patch %q has an empty anchor", p.ID), where)
		}
		if p.Kind != "" && !validKinds[p.Kind] {
			return invalid(s, fmt.Sprintf("patch %q has invalid kind %q: must be one of: replace, delete-block, insert-after", p.ID, p.Kind), where)
		}
		switch p.EffectiveKind() {
		case KindReplace:
			if p.Replacement == p.Anchor {
				return invalid(s, fmt.Sprintf("patch %q replaces its anchor with itself", p.ID), where)
			}
			if p.Until != "" {
				return invalid(s, fmt.Sprintf("patch %q: 'until' only applies to delete-block and insert-after", p.ID), where)
			}
		case KindInsertAfter:
			if p.Replacement == "" {
				return invalid(s, fmt.Sprintf("patch %q inserts nothing", p.ID), where)
			}
		case KindDeleteBlock:
			if p.Replacement != "" {
				return invalid(s, fmt.Sprintf("patch %q: delete-block takes no replacement", p.ID), where)
			}
		}
	}

	linkIDs := make(map[string]bool, len(s.Links))
	for _, l := range s.Links {
		if strings.TrimSpace(l.ID) == "" {
			return invalid(s, "link has no id", nil)
		}
		if linkIDs[l.ID] {
			return invalid(s, fmt.Sprintf("link id %q is used twice", l.ID), nil)
		}
		linkIDs[l.ID] = true
		if len(l.Documents) < 2 {
			return invalid(s, fmt.Sprintf("link %q must name at least two documents", l.ID), nil)
		}
		if l.Prefix == "" {
			return invalid(s, fmt.Sprintf("link %q has an empty prefix", l.ID), nil)
		}
	}
	return nil
}

func validateReferences(s *Set) error {
	ids := make(map[string]bool, len(s.Patches))
	for _, p := range s.Patches {
		ids[p.ID] = true
	}
	for _, p := range s.Patches {
		for _, dep := range p.DependsOn {
			if dep == p.ID {
				return perrors.NewWithDetails(perrors.EDependencyCycle,
					fmt.Sprintf("patch %q depends on itself", p.ID),
					map[string]string{"set": s.Label(), "cycle": p.ID})
			}
			if !ids[dep] {
				return invalid(s, fmt.Sprintf("patch %q depends on unknown patch %q", p.ID, dep),
					map[string]string{"patch": p.ID, "depends_on": dep})
			}
		}
	}
	return nil
}

// findCycle returns the ids along one dependency cycle, first id repeated
// at the end, or nil when the graph is acyclic.
func findCycle(s *Set) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	deps := make(map[string][]string, len(s.Patches))
	for _, p := range s.Patches {
		deps[p.ID] = p.DependsOn
	}

	state := make(map[string]int, len(s.Patches))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch state[dep] {
			case visiting:
				start := 0
				for i, v := range stack {
					if v == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, p := range s.Patches {
		if state[p.ID] == unvisited && visit(p.ID) {
			return cycle
		}
	}
	return nil
}

func validateOrder(s *Set) error {
	index := make(map[string]int, len(s.Patches))
	for i, p := range s.Patches {
		index[p.ID] = i
	}
	for i, p := range s.Patches {
		for _, dep := range p.DependsOn {
			if index[dep] > i {
				return perrors.NewWithDetails(perrors.EOrderingViolation,
					fmt.Sprintf("patch %q (#%d) depends on %q (#%d), which is declared after it", p.ID, i, dep, index[dep]),
					map[string]string{
						"set":        s.Label(),
						"patch":      p.ID,
						"depends_on": dep,
						"suggested":  strings.Join(TopologicalOrder(s), ","),
					})
			}
		}
	}
	return nil
}

// TopologicalOrder returns the patch ids in a dependency-respecting order
// that stays as close as possible to the declared order. It is meant for
// diagnostics; the result is undefined when the graph has a cycle.
func TopologicalOrder(s *Set) []string {
	index := make(map[string]int, len(s.Patches))
	indegree := make(map[string]int, len(s.Patches))
	dependents := make(map[string][]string, len(s.Patches))
	for i, p := range s.Patches {
		index[p.ID] = i
		for _, dep := range p.DependsOn {
			indegree[p.ID]++
			dependents[dep] = append(dependents[dep], p.ID)
		}
	}

	var ready []string
	for _, p := range s.Patches {
		if indegree[p.ID] == 0 {
			ready = append(ready, p.ID)
		}
	}

	order := make([]string, 0, len(s.Patches))
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return index[ready[a]] < index[ready[b]] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return order
}

// Dependents returns, for every patch id, the ids that depend on it
// directly or transitively.
func Dependents(s *Set) map[string][]string {
	direct := make(map[string][]string, len(s.Patches))
	for _, p := range s.Patches {
		for _, dep := range p.DependsOn {
			direct[dep] = append(direct[dep], p.ID)
		}
	}
	out := make(map[string][]string, len(direct))
	for id := range direct {
		seen := map[string]bool{}
		queue := append([]string{}, direct[id]...)
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			if seen[next] {
				continue
			}
			seen[next] = true
			out[id] = append(out[id], next)
			queue = append(queue, direct[next]...)
		}
	}
	return out
}

func invalid(s *Set, msg string, details map[string]string) error {
	d := map[string]string{"set": s.Label()}
	for k, v := range details {
		d[k] = v
	}
	return perrors.NewWithDetails(perrors.EInvalidPatchSet, msg, d)
}

func containsFragment(s, fragment string) bool {
	return fragment != "" && strings.Contains(s, fragment)
}
