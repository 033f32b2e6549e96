package core

import "strings"

// Callback payloads shared between the engine (which sends the
// buttons) and the transport (which decodes the presses).
const (
	ActionNewAssignment = "new_assignment"

	languageActionPrefix = "set_language_"
)

// LanguageActionID builds the callback id of a language button.
func LanguageActionID(lang Language) string {
	return languageActionPrefix + string(lang)
}

// ParseLanguageAction decodes a language button press.
func ParseLanguageAction(data string) (Language, bool) {
	if !strings.HasPrefix(data, languageActionPrefix) {
		return "", false
	}
	return ParseLanguage(strings.TrimPrefix(data, languageActionPrefix))
}

// Origin identifies where an inbound event came from. Telegram user and
// chat ids differ in group chats, so both are carried.
type Origin struct {
	UserID   int64
	ChatID   int64
	Username string
}

// Event is one inbound interaction, decoded once at the transport
// boundary into exactly one variant. The engine matches variants
// exhaustively; raw update payloads never cross this line.
type Event interface {
	From() Origin
	isEvent()
}

// StartEvent is /start or /language: show the language keyboard.
type StartEvent struct {
	Origin
}

// LanguageSelectEvent is a press on one of the language buttons.
type LanguageSelectEvent struct {
	Origin
	Language  Language
	MessageID int
}

// SubmissionEvent is an essay submission, either plain text or a photo
// of handwriting. Exactly one of Text / PhotoRef is set.
type SubmissionEvent struct {
	Origin
	Text     string
	PhotoRef string
}

// ContinueEvent is a press on the "give me another" button.
type ContinueEvent struct {
	Origin
	MessageID int
}

// UnknownEvent is anything the transport could not decode.
type UnknownEvent struct {
	Origin
	Payload string
}

func (o Origin) From() Origin { return o }

func (StartEvent) isEvent()          {}
func (LanguageSelectEvent) isEvent() {}
func (SubmissionEvent) isEvent()     {}
func (ContinueEvent) isEvent()       {}
func (UnknownEvent) isEvent()        {}
