package snapshot

import "strings"

// MergeStats reports what Merge took from the imported snapshot.
type MergeStats struct {
	AddedSubstances   int
	SkippedSubstances int
	AddedEntries      int
}

// Merge combines current with imported. With replace, existing records are
// discarded and everything imported is kept. Otherwise imported substances
// whose name already exists (case-insensitive) are skipped and all imported
// entries are appended. Top-level extras of current win.
func Merge(current, imported *Snapshot, replace bool) (*Snapshot, MergeStats) {
	out := &Snapshot{}
	var stats MergeStats

	if current != nil {
		out.Extra = current.Extra
		if !replace {
			out.Substances = append(out.Substances, current.Substances...)
			out.Entries = append(out.Entries, current.Entries...)
		}
	}
	if imported == nil {
		return out, stats
	}
	if out.Extra == nil {
		out.Extra = imported.Extra
	}

	names := make(map[string]struct{}, len(out.Substances))
	for _, s := range out.Substances {
		names[strings.ToLower(s.Name)] = struct{}{}
	}
	for _, s := range imported.Substances {
		key := strings.ToLower(s.Name)
		if _, dup := names[key]; dup && !replace {
			stats.SkippedSubstances++
			continue
		}
		names[key] = struct{}{}
		out.Substances = append(out.Substances, s)
		stats.AddedSubstances++
	}

	out.Entries = append(out.Entries, imported.Entries...)
	stats.AddedEntries = len(imported.Entries)
	return out, stats
}
