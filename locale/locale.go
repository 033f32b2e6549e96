// Package locale holds the user-facing message catalog. Lookup is a
// pure function; unknown languages fall back to English and unknown
// keys fall back to the key itself so a missing entry stays visible
// instead of sending an empty message.
package locale

import (
	"fmt"

	"Sochinenie/core"
)

type Key string

const (
	LanguagePrompt    Key = "language_prompt"
	LanguageConfirmed Key = "language_confirmed"
	FirstAssignment   Key = "first_assignment"
	AssignmentBody    Key = "assignment_body"
	TooShort          Key = "too_short"
	TooLong           Key = "too_long"
	OffTopic          Key = "off_topic"
	ExtractionFailed  Key = "extraction_failed"
	FeedbackFollowup  Key = "feedback_followup"
	NextAfterDone     Key = "next_after_done"
	NextAfterDecline  Key = "next_after_decline"
	TopicsExhausted   Key = "topics_exhausted"
	TryAgain          Key = "try_again"
	ButtonAnother     Key = "button_another"
	ButtonDone        Key = "button_done"
)

var messages = map[core.Language]map[Key]string{
	core.LangEN: {
		LanguagePrompt:    "Please choose your language:",
		LanguageConfirmed: "Language set. All my messages will be in English now.",
		FirstAssignment:   "Now I'm going to give you your first assignment!",
		AssignmentBody:    "*%s*\n\n%s\n\nUseful words: %s",
		TooShort:          "That's too short for an essay. Please write at least %d characters.",
		TooLong:           "That's too long, I'm afraid. Please keep it under %d characters.",
		OffTopic:          "Hmm, that doesn't seem to be about \"%s\". Please write about the assigned topic.",
		ExtractionFailed:  "Couldn't extract text from the image. Please try again.",
		FeedbackFollowup:  "Would you like a new assignment?",
		NextAfterDone:     "Ok, here's your new assignment.",
		NextAfterDecline:  "I understand you don't want this one. Let's assign you another.",
		TopicsExhausted:   "Incredible - you have written about every topic I have! There's nothing left to assign.",
		TryAgain:          "Something went wrong on my side. Please try again in a moment.",
		ButtonAnother:     "I want another one",
		ButtonDone:        "I'm done, give me another",
	},
	core.LangRU: {
		LanguagePrompt:    "Пожалуйста, выберите язык:",
		LanguageConfirmed: "Язык установлен. Теперь я буду писать по-русски.",
		FirstAssignment:   "А теперь ваше первое задание!",
		AssignmentBody:    "*%s*\n\n%s\n\nПолезные слова: %s",
		TooShort:          "Слишком коротко для сочинения. Напишите хотя бы %d символов.",
		TooLong:           "Слишком длинно. Пожалуйста, уложитесь в %d символов.",
		OffTopic:          "Кажется, это не про \"%s\". Пожалуйста, пишите на заданную тему.",
		ExtractionFailed:  "Не удалось распознать текст на фото. Попробуйте ещё раз.",
		FeedbackFollowup:  "Хотите новое задание?",
		NextAfterDone:     "Хорошо, вот ваше новое задание.",
		NextAfterDecline:  "Понимаю, эта тема не нравится. Давайте подберу другую.",
		TopicsExhausted:   "Невероятно - вы написали обо всех темах, что у меня есть! Задания закончились.",
		TryAgain:          "Что-то пошло не так. Попробуйте ещё раз через минуту.",
		ButtonAnother:     "Хочу другую тему",
		ButtonDone:        "Готово, давайте следующее",
	},
	core.LangDE: {
		LanguagePrompt:    "Bitte wählen Sie Ihre Sprache:",
		LanguageConfirmed: "Sprache eingestellt. Ab jetzt schreibe ich auf Deutsch.",
		FirstAssignment:   "Und jetzt bekommst du deine erste Aufgabe!",
		AssignmentBody:    "*%s*\n\n%s\n\nNützliche Wörter: %s",
		TooShort:          "Das ist zu kurz für einen Aufsatz. Bitte schreibe mindestens %d Zeichen.",
		TooLong:           "Das ist zu lang. Bitte bleibe unter %d Zeichen.",
		OffTopic:          "Hmm, das scheint nicht zum Thema \"%s\" zu passen. Bitte schreibe über das gestellte Thema.",
		ExtractionFailed:  "Ich konnte keinen Text auf dem Bild erkennen. Bitte versuche es noch einmal.",
		FeedbackFollowup:  "Möchtest du eine neue Aufgabe?",
		NextAfterDone:     "Gut, hier ist deine neue Aufgabe.",
		NextAfterDecline:  "Verstehe, das Thema gefällt dir nicht. Ich gebe dir ein anderes.",
		TopicsExhausted:   "Unglaublich - du hast über jedes Thema geschrieben, das ich habe!",
		TryAgain:          "Bei mir ist etwas schiefgelaufen. Bitte versuche es gleich noch einmal.",
		ButtonAnother:     "Ich möchte ein anderes",
		ButtonDone:        "Fertig, gib mir das nächste",
	},
}

// Text looks up the message for key in lang and formats args into it.
func Text(key Key, lang core.Language, args ...any) string {
	table, ok := messages[lang]
	if !ok {
		table = messages[core.LangEN]
	}
	format, ok := table[key]
	if !ok {
		format = messages[core.LangEN][key]
	}
	if format == "" {
		return string(key)
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
