package snapshot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/timex"
	"github.com/google/uuid"
)

type section int

const (
	sectionNone section = iota
	sectionSubstance
	sectionEntry
	sectionProfile
)

var sectionMarkers = map[string]section{
	"SUBSTANCES": sectionSubstance,
	"SUSTANCIAS": sectionSubstance,
	"ENTRIES":    sectionEntry,
	"REGISTROS":  sectionEntry,
	"PROFILE":    sectionProfile,
	"PERFIL":     sectionProfile,
}

var headerPrefixes = []string{"ID,", "ID;", "CAMPO,", "CAMPO;", "FIELD,", "FIELD;"}

// Decoder parses the tabular form. The zero value is not usable; use
// NewDecoder.
type Decoder struct {
	now    timex.Clock
	suffix func() string
}

type DecoderOption func(*Decoder)

func WithDecoderClock(now timex.Clock) DecoderOption {
	return func(d *Decoder) { d.now = now }
}

// WithIDSuffix replaces the random suffix used for synthetic ids.
func WithIDSuffix(f func() string) DecoderOption {
	return func(d *Decoder) { d.suffix = f }
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		now:    time.Now,
		suffix: func() string { return uuid.NewString()[:8] },
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// DecodeCSV parses text with a default Decoder.
func DecodeCSV(text []byte) (*Snapshot, error) {
	return NewDecoder().Decode(text)
}

// Decode parses the tabular form. It is deliberately permissive: either
// delimiter, either quote character, English or Spanish section markers,
// blank ids and unparsable doses are all accepted. Rows that lack the
// minimum columns or a name are skipped. Only empty input is an error.
func (d *Decoder) Decode(text []byte) (*Snapshot, error) {
	s := strings.TrimPrefix(string(text), bom)
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: file is empty", common.ErrValidation)
	}

	snap := &Snapshot{}
	current := sectionNone

	for _, rec := range splitRecords(s) {
		line := strings.TrimSpace(strings.TrimPrefix(rec, bom))
		if line == "" {
			continue
		}
		if sec, ok := sectionMarker(line); ok {
			current = sec
			continue
		}
		if isHeader(line) {
			continue
		}

		cols := splitFields(line, detectDelimiter(line))
		switch current {
		case sectionSubstance:
			if sub, ok := d.parseSubstance(cols); ok {
				snap.Substances = append(snap.Substances, sub)
			}
		case sectionEntry:
			if e, ok := d.parseEntry(cols); ok {
				snap.Entries = append(snap.Entries, e)
			}
		}
	}
	return snap, nil
}

func (d *Decoder) syntheticID() string {
	return fmt.Sprintf("%d-%s", d.now().UnixMilli(), d.suffix())
}

func col(cols []string, i int) string {
	if i < len(cols) {
		return cols[i]
	}
	return ""
}

func (d *Decoder) parseSubstance(cols []string) (Substance, bool) {
	if len(cols) < 3 {
		return Substance{}, false
	}
	name := cols[1]
	if strings.TrimSpace(name) == "" {
		return Substance{}, false
	}

	id := strings.TrimSpace(cols[0])
	if id == "" {
		id = d.syntheticID()
	}

	// The emoji column is optional. A date-looking fourth column means it
	// was omitted and the dates start one column earlier.
	emoji, createdIdx := "", 4
	if third := col(cols, 3); looksLikeDate(third) {
		createdIdx = 3
	} else {
		emoji = strings.TrimSpace(third)
	}

	created := col(cols, createdIdx)
	if strings.TrimSpace(created) == "" {
		created = d.now().UTC().Format("2006-01-02T15:04:05.000Z")
	}

	return Substance{
		ID:        id,
		Name:      name,
		Color:     cols[2],
		Emoji:     emoji,
		CreatedAt: created,
		UpdatedAt: col(cols, createdIdx+1),
	}, true
}

func (d *Decoder) parseEntry(cols []string) (Entry, bool) {
	if len(cols) < 5 {
		return Entry{}, false
	}
	substance := cols[1]
	if strings.TrimSpace(substance) == "" {
		return Entry{}, false
	}

	id := strings.TrimSpace(cols[0])
	if id == "" {
		id = d.syntheticID()
	}

	return Entry{
		ID:        id,
		Substance: substance,
		Dose:      parseDose(cols[2]),
		Unit:      cols[3],
		Date:      cols[4],
		Set:       col(cols, 5),
		Setting:   col(cols, 6),
		Notes:     col(cols, 7),
		CreatedAt: col(cols, 8),
		UpdatedAt: col(cols, 9),
	}, true
}

// parseDose accepts a decimal comma; anything unparsable is 0.
func parseDose(raw string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func looksLikeDate(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && strings.ContainsAny(v, "-:T")
}

func sectionMarker(line string) (section, bool) {
	name := strings.TrimRight(line, ",; \t")
	name = strings.Trim(name, `"'`)
	sec, ok := sectionMarkers[strings.ToUpper(name)]
	return sec, ok
}

func isHeader(line string) bool {
	upper := strings.ToUpper(strings.TrimLeft(line, `"'`))
	upper = strings.Replace(upper, `"`, "", 1)
	upper = strings.Replace(upper, `'`, "", 1)
	for _, p := range headerPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

func isQuote(r rune) bool { return r == '"' || r == '\'' }

// scanner walks a record tracking quote state. A quote opens only at the
// start of a field, possibly after whitespace; inside quotes a doubled quote
// character is a literal.
type scanner struct {
	inQuote    bool
	quote      rune
	fieldStart bool
}

// step advances over rs[i] and reports how many runes it consumed and
// whether the rune is a literal that belongs to the field value.
func (s *scanner) step(rs []rune, i int, isDelim func(rune) bool) (consumed int, literal bool) {
	r := rs[i]
	switch {
	case s.inQuote && r == s.quote:
		if i+1 < len(rs) && rs[i+1] == s.quote {
			return 2, true
		}
		s.inQuote = false
		return 1, false
	case s.inQuote:
		return 1, true
	case isDelim(r):
		s.fieldStart = true
		return 1, false
	case s.fieldStart && isQuote(r):
		s.inQuote = true
		s.quote = r
		s.fieldStart = false
		return 1, false
	case s.fieldStart && unicode.IsSpace(r):
		return 1, false
	default:
		s.fieldStart = false
		return 1, true
	}
}

func anyDelim(r rune) bool { return r == ',' || r == ';' }

// splitRecords splits text into logical records. \n, \r\n and a lone \r all
// end a record, but only outside quotes: line breaks inside a quoted field are
// kept as written. If the text ends with a quote still open, the unterminated
// tail is split on plain line breaks instead.
func splitRecords(text string) []string {
	var out []string
	rs := []rune(text)
	sc := scanner{fieldStart: true}
	start := 0

	for i := 0; i < len(rs); {
		if !sc.inQuote && (rs[i] == '\n' || rs[i] == '\r') {
			out = append(out, string(rs[start:i]))
			if rs[i] == '\r' && i+1 < len(rs) && rs[i+1] == '\n' {
				i++
			}
			i++
			start = i
			sc = scanner{fieldStart: true}
			continue
		}
		n, _ := sc.step(rs, i, anyDelim)
		i += n
	}

	tail := string(rs[start:])
	if sc.inQuote {
		return append(out, splitLines(tail)...)
	}
	return append(out, tail)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(strings.ReplaceAll(s, "\r", "\n"), "\n")
}

// detectDelimiter counts unquoted semicolons and commas; semicolon wins ties
// and is the default.
func detectDelimiter(line string) rune {
	rs := []rune(line)
	sc := scanner{fieldStart: true}
	semicolons, commas := 0, 0
	for i := 0; i < len(rs); {
		if !sc.inQuote {
			switch rs[i] {
			case ';':
				semicolons++
			case ',':
				commas++
			}
		}
		n, _ := sc.step(rs, i, anyDelim)
		i += n
	}
	switch {
	case semicolons > 0 && semicolons >= commas:
		return ';'
	case commas > 0:
		return ','
	default:
		return ';'
	}
}

func splitFields(line string, delim rune) []string {
	rs := []rune(line)
	sc := scanner{fieldStart: true}
	isDelim := func(r rune) bool { return r == delim }

	var fields []string
	var cur strings.Builder
	closed := false

	for i := 0; i < len(rs); {
		r := rs[i]
		if !sc.inQuote && isDelim(r) {
			fields = append(fields, cur.String())
			cur.Reset()
			closed = false
			sc.fieldStart = true
			i++
			continue
		}
		wasQuoted := sc.inQuote
		n, literal := sc.step(rs, i, isDelim)
		if wasQuoted && !sc.inQuote {
			closed = true
		}
		if literal {
			// whitespace after a closing quote is padding
			if !(closed && !sc.inQuote && unicode.IsSpace(r)) {
				cur.WriteRune(r)
			}
		}
		i += n
	}
	return append(fields, cur.String())
}
