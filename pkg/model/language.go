package model

import (
	"fmt"
	"strings"
)

// Language is a narration language code.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"
	Tamil   Language = "ta"
)

// LanguageInfo holds the code and display strings of a language.
type LanguageInfo struct {
	Code   Language `json:"code"`
	Label  string   `json:"label"`  // e.g., "Hindi"
	Helper string   `json:"helper"` // short reader-facing caption
}

// Languages is the closed set of supported narration languages, in menu order.
var Languages = []LanguageInfo{
	{Code: English, Label: "English", Helper: "Original voice"},
	{Code: Hindi, Label: "Hindi", Helper: "भारतीय पाठक"},
	{Code: Tamil, Label: "Tamil", Helper: "தமிழ் வாசகர்"},
}

// ParseLanguage normalizes s and returns the matching Language.
func ParseLanguage(s string) (Language, error) {
	code := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range Languages {
		if l.Code == code {
			return code, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Info returns the display info for l. Unknown codes yield a bare entry.
func (l Language) Info() LanguageInfo {
	for _, info := range Languages {
		if info.Code == l {
			return info
		}
	}
	return LanguageInfo{Code: l, Label: string(l)}
}

func (l Language) String() string {
	return string(l)
}
