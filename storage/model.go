package storage

import (
	"time"

	"Sochinenie/core"
)

type User struct {
	TelegramID int64         `bson:"telegram_id"`
	ChatID     int64         `bson:"chat_id"`
	Username   string        `bson:"username"`
	Language   core.Language `bson:"language"`
	CreatedAt  time.Time     `bson:"created_at"`
}

// Topic is one writing prompt from the catalog. Prompt is the German
// text of the task and is what the relevance judgment runs against;
// Title/Description/Keywords are the localized presentation.
type Topic struct {
	ID          string                   `bson:"_id"`
	Prompt      string                   `bson:"prompt"`
	Title       map[core.Language]string `bson:"title"`
	Description map[core.Language]string `bson:"description"`
	Keywords    map[core.Language]string `bson:"keywords"`
	Active      bool                     `bson:"active"`
}

// LocalTitle returns the topic title in lang, falling back to English.
func (t *Topic) LocalTitle(lang core.Language) string {
	return t.local(t.Title, lang)
}

func (t *Topic) LocalDescription(lang core.Language) string {
	return t.local(t.Description, lang)
}

func (t *Topic) LocalKeywords(lang core.Language) string {
	return t.local(t.Keywords, lang)
}

func (t *Topic) local(texts map[core.Language]string, lang core.Language) string {
	if text, ok := texts[lang]; ok && text != "" {
		return text
	}
	return texts[core.LangEN]
}

type AssignmentState string

const (
	StateActive    AssignmentState = "ACTIVE"
	StateSubmitted AssignmentState = "SUBMITTED"
	StateDone      AssignmentState = "DONE"
	StateCancelled AssignmentState = "CANCELLED"
)

// Terminal reports whether the state ends an assignment's lifecycle.
func (s AssignmentState) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

type Assignment struct {
	ID      string          `bson:"_id"`
	UserID  int64           `bson:"user_id"`
	TopicID string          `bson:"topic_id"`
	State   AssignmentState `bson:"state"`
	// MessageID is the chat message the assignment or its feedback is
	// attached to, kept so the inline button can be stripped later.
	MessageID int       `bson:"message_id"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
