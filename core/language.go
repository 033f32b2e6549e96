package core

// Language is the user's interface language, not the language of the
// essays themselves (those are always German).
type Language string

const (
	LangEN Language = "EN"
	LangRU Language = "RU"
	LangDE Language = "DE"
)

// ParseLanguage returns the language for a callback code like "EN".
func ParseLanguage(code string) (Language, bool) {
	switch Language(code) {
	case LangEN, LangRU, LangDE:
		return Language(code), true
	}
	return "", false
}
