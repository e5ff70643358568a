package bot

import (
	"strings"

	"golang.org/x/text/cases"
)

// Match проверяет текст события против input. Пустой текст (join/leave)
// совпадает всегда.
func (in Input) Match(text string) bool {
	if text == "" {
		return true
	}
	pattern := in.Pattern
	if !in.CaseSensitive {
		pattern, text = fold(pattern), fold(text)
	}
	switch in.Comparison {
	case Equals:
		return text == pattern
	case Contains:
		return strings.Contains(text, pattern)
	case StartsWith:
		return strings.HasPrefix(text, pattern)
	case EndsWith:
		return strings.HasSuffix(text, pattern)
	default:
		return true
	}
}

// Caser хранит состояние, поэтому новый на каждый вызов.
func fold(s string) string {
	return cases.Fold().String(s)
}

// CheckPermissions: "any", вхождение токена в ник (без учёта регистра)
// или точное совпадение с логином. Пустой список разрешает всё.
func CheckPermissions(permissions string, u User) bool {
	var tokens []string
	for _, p := range strings.Split(permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	if len(tokens) == 0 {
		return true
	}
	nick := fold(u.Nick)
	for _, p := range tokens {
		if p == permissionAny {
			return true
		}
		if strings.Contains(nick, fold(p)) || u.Login == p {
			return true
		}
	}
	return false
}
