// Package topics derives human-readable session titles and bounded topic
// tags from message content. Both are approximations by design: the title
// is a clipped prefix of the first message, and tagging is a fixed
// bilingual (English/Arabic) keyword scan, not NLP.
package topics

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTitle is used when a session starts without a first message.
	DefaultTitle = "New Conversation"

	// titleMaxWords caps how many leading tokens of the first message feed
	// the generated title.
	titleMaxWords = 6

	// TitleMaxChars is the hard cap on stored title length (runes). Longer
	// titles are clipped with a trailing ellipsis.
	TitleMaxChars = 50
)

// Title derives a session title from the initiating message: the first
// titleMaxWords whitespace-separated tokens, clipped to TitleMaxChars runes
// with a trailing ellipsis when clipping occurred. Empty content yields
// DefaultTitle.
func Title(content string) string {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return DefaultTitle
	}
	if len(fields) > titleMaxWords {
		fields = fields[:titleMaxWords]
	}
	return Clip(strings.Join(fields, " "), TitleMaxChars)
}

// Clip truncates s to max runes, appending an ellipsis when it had to cut.
// A max <= 0 returns s unchanged.
func Clip(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}

// keyword pairs a matchable surface form with the canonical tag it yields.
// Arabic surface forms map onto the same canonical tags as their English
// counterparts so the tag set stays language-neutral.
type keyword struct {
	match string // lowercase surface form searched as a substring
	tag   string // canonical tag recorded on the session
}

// vocabulary is the fixed bilingual keyword list, scanned in order so tag
// extraction is deterministic. Substring matching is intentionally loose:
// "prayers" and "praying" both hit "prayer".
var vocabulary = []keyword{
	{"prayer", "prayer"}, {"salah", "prayer"}, {"salat", "prayer"}, {"صلاة", "prayer"}, {"الصلاة", "prayer"},
	{"zakat", "zakat"}, {"زكاة", "zakat"}, {"الزكاة", "zakat"},
	{"quran", "quran"}, {"qur'an", "quran"}, {"قرآن", "quran"}, {"القرآن", "quran"},
	{"hadith", "hadith"}, {"حديث", "hadith"}, {"sunnah", "hadith"}, {"سنة", "hadith"},
	{"ramadan", "ramadan"}, {"رمضان", "ramadan"},
	{"fasting", "fasting"}, {"sawm", "fasting"}, {"صوم", "fasting"}, {"صيام", "fasting"},
	{"hajj", "hajj"}, {"حج", "hajj"}, {"umrah", "hajj"}, {"عمرة", "hajj"},
	{"dua", "dua"}, {"دعاء", "dua"},
	{"qibla", "qibla"}, {"قبلة", "qibla"},
	{"halal", "halal"}, {"حلال", "halal"}, {"haram", "halal"}, {"حرام", "halal"},
	{"wudu", "wudu"}, {"وضوء", "wudu"},
	{"eid", "eid"}, {"عيد", "eid"},
	{"mosque", "mosque"}, {"masjid", "mosque"}, {"مسجد", "mosque"},
	{"shahada", "shahada"}, {"شهادة", "shahada"},
	{"sadaqah", "charity"}, {"charity", "charity"}, {"صدقة", "charity"},
	{"tafsir", "tafsir"}, {"تفسير", "tafsir"},
	{"fiqh", "fiqh"}, {"فقه", "fiqh"},
}

// ExtractTags scans content (case-insensitive substring match) against the
// bilingual vocabulary and returns the canonical tags found, deduplicated,
// in vocabulary order. The caller merges the result into the session's tag
// set, which enforces the overall cap.
func ExtractTags(content string) []string {
	lower := strings.ToLower(content)
	var out []string
	seen := make(map[string]struct{})
	for _, kw := range vocabulary {
		if _, dup := seen[kw.tag]; dup {
			continue
		}
		if strings.Contains(lower, kw.match) {
			seen[kw.tag] = struct{}{}
			out = append(out, kw.tag)
		}
	}
	return out
}
