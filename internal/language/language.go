package language

import "strings"

type entry struct {
	code2   string
	code3   []string
	display string
}

var languages = []entry{
	{"ja", []string{"jpn"}, "Japanese"},
	{"en", []string{"eng"}, "English"},
	{"zh", []string{"zho", "chi"}, "Chinese"},
	{"ko", []string{"kor"}, "Korean"},
	{"fr", []string{"fra", "fre"}, "French"},
	{"de", []string{"deu", "ger"}, "German"},
	{"es", []string{"spa"}, "Spanish"},
	{"pt", []string{"por"}, "Portuguese"},
	{"it", []string{"ita"}, "Italian"},
	{"ru", []string{"rus"}, "Russian"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[strings.ToLower(e.display)] = e
		for _, c := range e.code3 {
			m[c] = e
		}
	}
	return m
}()

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	// BCP 47 tags such as ja-JP carry the language first.
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return index[code]
}

// ToISO2 converts a recognized code or English name to ISO 639-1. Unknown
// two-letter input passes through; anything else yields "".
func ToISO2(code string) string {
	if e := lookup(code); e != nil {
		return e.code2
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns a human-readable language name.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// FromTags reads the language tag from container or stream metadata.
func FromTags(tags map[string]string) string {
	for _, key := range []string{"language", "LANGUAGE", "Language", "lang"} {
		if value := strings.TrimSpace(strings.ReplaceAll(tags[key], "\u0000", "")); value != "" {
			return ToISO2(value)
		}
	}
	return ""
}
