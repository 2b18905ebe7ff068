// Package snapshot converts the structured data unit (substances and entries)
// to and from its JSON form, used by backups, and its sectioned CSV form, used
// for human export and import.
package snapshot

import (
	"encoding/json"
	"strings"
)

// Substance is one substance definition.
type Substance struct {
	ID        string
	Name      string
	Color     string
	Emoji     string
	CreatedAt string
	UpdatedAt string

	// Extra holds fields this package does not know about; they survive a
	// JSON round trip untouched.
	Extra map[string]json.RawMessage

	numeric fieldSet
}

// Entry is one logged intake. Substance names the substance it refers to.
type Entry struct {
	ID        string
	Substance string
	Dose      float64
	Unit      string
	Date      string
	Set       string
	Setting   string
	Notes     string
	CreatedAt string
	UpdatedAt string

	Extra map[string]json.RawMessage

	numeric fieldSet
}

// Snapshot is an ordered collection of substances and entries.
type Snapshot struct {
	Substances []Substance
	Entries    []Entry

	// Extra holds unknown top-level keys such as the user profile.
	Extra map[string]json.RawMessage
}

// fieldSet remembers which known fields were JSON numbers in the source so
// they are written back as numbers.
type fieldSet map[string]bool

func (f fieldSet) has(name string) bool { return f != nil && f[name] }

// Summary describes a snapshot for the import preview.
type Summary struct {
	Substances int
	Entries    int
	// Dangling counts entries whose substance matches no substance by id or
	// name. They are kept; recovery wins over referential strictness.
	Dangling int
}

func (s *Snapshot) Summary() Summary {
	known := make(map[string]struct{}, 2*len(s.Substances))
	for _, sub := range s.Substances {
		known[sub.ID] = struct{}{}
		known[strings.ToLower(sub.Name)] = struct{}{}
	}

	sum := Summary{Substances: len(s.Substances), Entries: len(s.Entries)}
	for _, e := range s.Entries {
		_, byID := known[e.Substance]
		_, byName := known[strings.ToLower(e.Substance)]
		if !byID && !byName {
			sum.Dangling++
		}
	}
	return sum
}

// IsEmpty reports whether the snapshot has no records.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Substances) == 0 && len(s.Entries) == 0
}
