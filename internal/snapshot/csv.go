package snapshot

import (
	"bytes"
	"strings"
)

const (
	bom = "\uFEFF"

	sectionSubstances = "SUBSTANCES"
	sectionEntries    = "ENTRIES"

	csvDelimiter = ';'

	substanceHeader = "ID;Name;Color;Emoji;Created;Updated"
	entryHeader     = "ID;Substance;Dose;Unit;DateTime;Set;Setting;Notes;Created;Updated"
)

// quote wraps v in double quotes, doubling embedded ones.
func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// bare leaves plain identifiers unquoted and quotes anything the parser
// could misread.
func bare(v string) string {
	if v == "" || strings.ContainsAny(v, ";,\"'\r\n") || strings.TrimSpace(v) != v {
		return quote(v)
	}
	return v
}

// EncodeCSV writes the tabular export: a byte-order mark, the SUBSTANCES
// section, a blank line, then the ENTRIES section. Missing emojis fall back to
// SuggestEmoji.
func EncodeCSV(s *Snapshot) []byte {
	var b bytes.Buffer
	b.WriteString(bom)

	b.WriteString(sectionSubstances + "\n")
	b.WriteString(substanceHeader + "\n")
	for _, sub := range s.Substances {
		emoji := sub.Emoji
		if emoji == "" {
			emoji = SuggestEmoji(sub.Name)
		}
		writeRow(&b, bare(sub.ID), quote(sub.Name), quote(sub.Color), quote(emoji),
			quote(sub.CreatedAt), quote(sub.UpdatedAt))
	}

	b.WriteString("\n")

	b.WriteString(sectionEntries + "\n")
	b.WriteString(entryHeader + "\n")
	for _, e := range s.Entries {
		writeRow(&b, bare(e.ID), quote(e.Substance), formatDose(e.Dose), quote(e.Unit),
			quote(e.Date), quote(e.Set), quote(e.Setting), quote(e.Notes),
			quote(e.CreatedAt), quote(e.UpdatedAt))
	}
	return b.Bytes()
}

func writeRow(b *bytes.Buffer, cols ...string) {
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(csvDelimiter)
		}
		b.WriteString(c)
	}
	b.WriteByte('\n')
}
