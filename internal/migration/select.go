package migration

import "sort"

// SelectApply returns the ids of the migrations an apply run should execute,
// oldest first. Only pending migrations are ever selected.
func SelectApply(states []State, cfg RunConfig) []string {
	candidates := idsWithStatus(states, StatusPending)
	sort.Strings(candidates)

	switch {
	case cfg.ID != "":
		return pick(candidates, cfg.ID)
	case cfg.To != "":
		var out []string
		for _, id := range candidates {
			if id <= cfg.To {
				out = append(out, id)
			}
		}
		return out
	case cfg.Number > 0:
		return first(candidates, cfg.Number)
	default:
		return candidates
	}
}

// SelectRevert returns the ids of the migrations a revert run should execute,
// newest first. Only applied migrations are revertable; without a mode the
// single most recent one is selected.
func SelectRevert(states []State, cfg RunConfig) []string {
	candidates := idsWithStatus(states, StatusApplied)
	sort.Sort(sort.Reverse(sort.StringSlice(candidates)))

	switch {
	case cfg.ID != "":
		return pick(candidates, cfg.ID)
	case cfg.To != "":
		var out []string
		for _, id := range candidates {
			if id > cfg.To {
				out = append(out, id)
			}
		}
		return out
	case cfg.Number > 0:
		return first(candidates, cfg.Number)
	default:
		return first(candidates, 1)
	}
}

// Ordered returns the migrations whose ids appear in ids, in the order of ids.
// Ids without a matching migration are skipped.
func Ordered(migrations []Migration, ids []string) []Migration {
	byID := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byID[m.ID] = m
	}
	out := make([]Migration, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

func idsWithStatus(states []State, status Status) []string {
	var out []string
	for _, s := range states {
		if s.Status == status {
			out = append(out, s.MigrationID)
		}
	}
	return out
}

func pick(ids []string, id string) []string {
	for _, candidate := range ids {
		if candidate == id {
			return []string{id}
		}
	}
	return nil
}

func first(ids []string, n int) []string {
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}
