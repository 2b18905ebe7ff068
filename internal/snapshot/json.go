package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/tidwall/gjson"
)

const (
	keySubstances = "substances"
	keyEntries    = "entries"
)

var (
	substanceFields = []string{"id", "name", "color", "emoji", "createdAt", "updatedAt"}
	entryFields     = []string{"id", "substance", "dose", "unit", "date", "set", "setting", "notes", "createdAt", "updatedAt"}
)

// Validate checks that text is a non-empty JSON object.
func Validate(text []byte) error {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: snapshot is empty", common.ErrValidation)
	}
	if !gjson.ValidBytes(trimmed) || trimmed[0] != '{' {
		return fmt.Errorf("%w: snapshot is not a JSON object", common.ErrValidation)
	}
	return nil
}

// DecodeJSON parses the structured form. Missing arrays are treated as empty;
// ids, doses and timestamps may be JSON strings or numbers.
func DecodeJSON(text []byte) (*Snapshot, error) {
	if err := Validate(text); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(text)
	s := &Snapshot{}

	root.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case keySubstances:
			value.ForEach(func(_, v gjson.Result) bool {
				if v.IsObject() {
					s.Substances = append(s.Substances, decodeSubstance(v))
				}
				return true
			})
		case keyEntries:
			value.ForEach(func(_, v gjson.Result) bool {
				if v.IsObject() {
					s.Entries = append(s.Entries, decodeEntry(v))
				}
				return true
			})
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]json.RawMessage)
			}
			s.Extra[key.String()] = compact(value.Raw)
		}
		return true
	})
	return s, nil
}

func compact(raw string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return json.RawMessage(raw)
	}
	return buf.Bytes()
}

// text returns the textual form of a scalar and whether it was a number.
func text(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Raw, true
	case gjson.Null:
		return "", false
	default:
		return r.String(), false
	}
}

func collect(obj gjson.Result, known []string) (map[string]string, fieldSet, map[string]json.RawMessage) {
	values := make(map[string]string, len(known))
	numeric := fieldSet{}
	var extra map[string]json.RawMessage

	isKnown := make(map[string]bool, len(known))
	for _, k := range known {
		isKnown[k] = true
	}

	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if !isKnown[k] {
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[k] = compact(value.Raw)
			return true
		}
		v, num := text(value)
		values[k] = v
		if num {
			numeric[k] = true
		}
		return true
	})
	return values, numeric, extra
}

func decodeSubstance(obj gjson.Result) Substance {
	v, numeric, extra := collect(obj, substanceFields)
	return Substance{
		ID:        v["id"],
		Name:      v["name"],
		Color:     v["color"],
		Emoji:     v["emoji"],
		CreatedAt: v["createdAt"],
		UpdatedAt: v["updatedAt"],
		Extra:     extra,
		numeric:   numeric,
	}
}

func decodeEntry(obj gjson.Result) Entry {
	v, numeric, extra := collect(obj, entryFields)
	return Entry{
		ID:        v["id"],
		Substance: v["substance"],
		Dose:      obj.Get("dose").Float(),
		Unit:      v["unit"],
		Date:      v["date"],
		Set:       v["set"],
		Setting:   v["setting"],
		Notes:     v["notes"],
		CreatedAt: v["createdAt"],
		UpdatedAt: v["updatedAt"],
		Extra:     extra,
		numeric:   numeric,
	}
}

// scalar renders value as a JSON number when it was one in the source and
// still parses as one, otherwise as a string.
func scalar(value string, numeric bool) json.RawMessage {
	if numeric {
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return json.RawMessage(value)
		}
	}
	b, _ := json.Marshal(value)
	return b
}

func str(value string) json.RawMessage {
	b, _ := json.Marshal(value)
	return b
}

func (s Substance) object() map[string]json.RawMessage {
	m := make(map[string]json.RawMessage, len(substanceFields)+len(s.Extra))
	for k, v := range s.Extra {
		m[k] = v
	}
	m["id"] = scalar(s.ID, s.numeric.has("id"))
	m["name"] = str(s.Name)
	m["color"] = str(s.Color)
	if s.Emoji != "" {
		m["emoji"] = str(s.Emoji)
	}
	m["createdAt"] = scalar(s.CreatedAt, s.numeric.has("createdAt"))
	if s.UpdatedAt != "" {
		m["updatedAt"] = scalar(s.UpdatedAt, s.numeric.has("updatedAt"))
	}
	return m
}

func (e Entry) object() map[string]json.RawMessage {
	m := make(map[string]json.RawMessage, len(entryFields)+len(e.Extra))
	for k, v := range e.Extra {
		m[k] = v
	}
	m["id"] = scalar(e.ID, e.numeric.has("id"))
	m["substance"] = str(e.Substance)
	m["dose"] = json.RawMessage(formatDose(e.Dose))
	m["unit"] = str(e.Unit)
	m["date"] = scalar(e.Date, e.numeric.has("date"))
	m["set"] = str(e.Set)
	m["setting"] = str(e.Setting)
	m["notes"] = str(e.Notes)
	m["createdAt"] = scalar(e.CreatedAt, e.numeric.has("createdAt"))
	m["updatedAt"] = scalar(e.UpdatedAt, e.numeric.has("updatedAt"))
	return m
}

// EncodeJSON writes the structured form. Object keys are sorted.
func EncodeJSON(s *Snapshot) ([]byte, error) {
	root := make(map[string]any, len(s.Extra)+2)
	for k, v := range s.Extra {
		root[k] = v
	}

	subs := make([]map[string]json.RawMessage, 0, len(s.Substances))
	for _, sub := range s.Substances {
		subs = append(subs, sub.object())
	}
	entries := make([]map[string]json.RawMessage, 0, len(s.Entries))
	for _, e := range s.Entries {
		entries = append(entries, e.object())
	}
	root[keySubstances] = subs
	root[keyEntries] = entries

	b, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %v", common.ErrValidation, err)
	}
	return b, nil
}

func formatDose(d float64) string {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return "0"
	}
	return strconv.FormatFloat(d, 'f', -1, 64)
}
