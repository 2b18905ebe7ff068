package snapshot

import "strings"

const defaultEmoji = "💊"

var emojiKeywords = []struct {
	keywords []string
	emoji    string
}{
	{[]string{"lsd", "ácido", "acid"}, "🌈"},
	{[]string{"ket"}, "❄️"},
	{[]string{"opio", "hero", "morf"}, "🌿"},
	{[]string{"mdma", "éxtasis", "ecstasy"}, "💎"},
	{[]string{"coca"}, "❄️"},
	{[]string{"anfet", "amphet", "speed", "meth"}, "⚡"},
	{[]string{"cannabis", "marihuana", "marijuana", "hach", "hash"}, "🌿"},
	{[]string{"psiloc", "hongo", "mushroom"}, "🍄"},
	{[]string{"dmt"}, "👁️"},
	{[]string{"mescal", "peyote"}, "🌵"},
	{[]string{"alcohol"}, "🍷"},
	{[]string{"nicotina", "nicotine", "tabaco", "tobacco"}, "🚬"},
	{[]string{"cafe", "café", "coffee", "té", "tea"}, "☕"},
}

// SuggestEmoji picks an emoji from keywords in name. First match wins.
func SuggestEmoji(name string) string {
	lower := strings.ToLower(name)
	if lower == "" {
		return defaultEmoji
	}
	for _, k := range emojiKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(lower, kw) {
				return k.emoji
			}
		}
	}
	return defaultEmoji
}
