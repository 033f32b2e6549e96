// Package engine drives the conversation: it receives decoded inbound
// events from the transport, holds the per-user single-flight gate
// around their handling, and coordinates the assignment state machine,
// the submission validator and the AI service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Sochinenie/assignment"
	"Sochinenie/core"
	"Sochinenie/gate"
	"Sochinenie/lib/sl"
	"Sochinenie/locale"
	"Sochinenie/storage"
)

type Engine struct {
	log         *slog.Logger
	store       storage.Storage
	assignments *assignment.Service
	validator   *assignment.Validator
	gate        gate.Gate
	ai          core.Assistant
	transport   core.Transport
}

func New(
	log *slog.Logger,
	store storage.Storage,
	assignments *assignment.Service,
	validator *assignment.Validator,
	g gate.Gate,
	ai core.Assistant,
	transport core.Transport,
) *Engine {
	return &Engine{
		log:         log.With(sl.Module("engine")),
		store:       store,
		assignments: assignments,
		validator:   validator,
		gate:        g,
		ai:          ai,
		transport:   transport,
	}
}

// Handle processes one inbound event. Everything except the initial
// /start passes the gate first; a user with an event already in flight
// has this one dropped, silently from their point of view.
func (e *Engine) Handle(ctx context.Context, event core.Event) {
	origin := event.From()

	if start, ok := event.(core.StartEvent); ok {
		e.handleStart(ctx, start)
		return
	}

	if !e.gate.TryAcquire(origin.UserID) {
		e.log.Warn("event dropped, previous one still in flight",
			slog.Int64("user", origin.UserID),
		)
		return
	}
	defer e.gate.Release(origin.UserID)

	switch ev := event.(type) {
	case core.LanguageSelectEvent:
		e.handleLanguageSelect(ctx, ev)
	case core.SubmissionEvent:
		e.handleSubmission(ctx, ev)
	case core.ContinueEvent:
		e.handleContinue(ctx, ev)
	case core.UnknownEvent:
		e.log.With(
			slog.Int64("user", origin.UserID),
			slog.String("payload", ev.Payload),
		).Info("unknown event dropped")
	}
}

func (e *Engine) handleStart(ctx context.Context, ev core.StartEvent) {
	user, _, err := e.getOrCreateUser(ctx, ev.Origin)
	if err != nil {
		e.log.Error("loading user", slog.Int64("user", ev.UserID), sl.Err(err))
		return
	}
	e.sendLanguageChoice(user)
}

func (e *Engine) handleLanguageSelect(ctx context.Context, ev core.LanguageSelectEvent) {
	user, _, err := e.getOrCreateUser(ctx, ev.Origin)
	if err != nil {
		e.log.Error("loading user", slog.Int64("user", ev.UserID), sl.Err(err))
		return
	}

	user.Language = ev.Language
	if err := e.store.SaveUser(ctx, user); err != nil {
		e.log.Error("saving user", slog.Int64("user", ev.UserID), sl.Err(err))
		e.replyTransient(user)
		return
	}

	if err := e.transport.ClearActions(user.ChatID, ev.MessageID); err != nil {
		e.log.Error("clearing language keyboard", sl.Err(err))
	}
	e.send(user, locale.Text(locale.LanguageConfirmed, user.Language))

	// First-time setup: a user who just picked a language and has no
	// assignment yet gets their first one right away.
	_, err = e.assignments.Current(ctx, user.TelegramID)
	if errors.Is(err, assignment.ErrNoActiveAssignment) {
		e.send(user, locale.Text(locale.FirstAssignment, user.Language))
		e.assignAndSend(ctx, user)
		return
	}
	if errors.Is(err, assignment.ErrInconsistentState) {
		e.log.Error("unrecoverable assignment state", slog.Int64("user", user.TelegramID))
		return
	}
	if err != nil {
		e.log.Error("loading current assignment", slog.Int64("user", user.TelegramID), sl.Err(err))
	}
}

func (e *Engine) handleSubmission(ctx context.Context, ev core.SubmissionEvent) {
	user, created, err := e.getOrCreateUser(ctx, ev.Origin)
	if err != nil {
		e.log.Error("loading user", slog.Int64("user", ev.UserID), sl.Err(err))
		return
	}
	if created {
		// Never seen before, so nothing is assigned yet. Onboard first.
		e.sendLanguageChoice(user)
		return
	}

	text := ev.Text
	if ev.PhotoRef != "" {
		text, err = e.extractFromPhoto(ctx, ev.PhotoRef)
		if err != nil {
			e.log.Error("extracting submission from photo", slog.Int64("user", user.TelegramID), sl.Err(err))
			e.replyTransient(user)
			return
		}
		if text == "" {
			e.send(user, locale.Text(locale.ExtractionFailed, user.Language))
			return
		}
	}

	current, err := e.assignments.Current(ctx, user.TelegramID)
	if errors.Is(err, assignment.ErrNoActiveAssignment) {
		// Known user, nothing in flight (e.g. the catalog ran out last
		// time). They want to write, so try to give them a topic.
		e.assignAndSend(ctx, user)
		return
	}
	if errors.Is(err, assignment.ErrInconsistentState) {
		e.log.Error("unrecoverable assignment state", slog.Int64("user", user.TelegramID))
		return
	}
	if err != nil {
		e.log.Error("loading current assignment", slog.Int64("user", user.TelegramID), sl.Err(err))
		e.replyTransient(user)
		return
	}

	topic, err := e.topicOf(ctx, current)
	if err != nil {
		e.log.Error("loading topic", slog.String("topic", current.TopicID), sl.Err(err))
		e.replyTransient(user)
		return
	}

	rejection, err := e.validator.Validate(ctx, text, topic.Prompt)
	if err != nil {
		e.log.Error("relevance check failed", slog.Int64("user", user.TelegramID), sl.Err(err))
		e.replyTransient(user)
		return
	}
	if rejection != nil {
		e.send(user, e.rejectionText(rejection, topic, user.Language))
		return
	}

	// Feedback is generated before the state moves so a failed AI call
	// leaves the assignment ACTIVE and the resend safe.
	feedback, err := e.ai.GenerateFeedback(ctx, text)
	if err != nil {
		e.log.Error("generating feedback", slog.Int64("user", user.TelegramID), sl.Err(err))
		e.replyTransient(user)
		return
	}

	if err := e.assignments.Submit(ctx, current); err != nil {
		e.log.Error("submitting assignment", slog.String("assignment", current.ID), sl.Err(err))
		e.replyTransient(user)
		return
	}
	if current.MessageID != 0 {
		if err := e.transport.ClearActions(user.ChatID, current.MessageID); err != nil {
			e.log.Error("clearing assignment keyboard", sl.Err(err))
		}
	}

	reply := feedback + "\n\n" + locale.Text(locale.FeedbackFollowup, user.Language)
	messageID, err := e.transport.SendTextWithActions(user.ChatID, reply, core.Action{
		Label: locale.Text(locale.ButtonDone, user.Language),
		ID:    core.ActionNewAssignment,
	})
	if err != nil {
		e.log.Error("sending feedback", slog.Int64("user", user.TelegramID), sl.Err(err))
		return
	}
	if err := e.assignments.SetMessageRef(ctx, current, messageID); err != nil {
		e.log.Error("saving message ref", slog.String("assignment", current.ID), sl.Err(err))
	}
}

func (e *Engine) handleContinue(ctx context.Context, ev core.ContinueEvent) {
	user, created, err := e.getOrCreateUser(ctx, ev.Origin)
	if err != nil {
		e.log.Error("loading user", slog.Int64("user", ev.UserID), sl.Err(err))
		return
	}
	if created {
		e.sendLanguageChoice(user)
		return
	}

	if err := e.transport.ClearActions(user.ChatID, ev.MessageID); err != nil {
		e.log.Error("clearing continue keyboard", sl.Err(err))
	}

	current, err := e.assignments.Current(ctx, user.TelegramID)
	if errors.Is(err, assignment.ErrNoActiveAssignment) {
		e.assignAndSend(ctx, user)
		return
	}
	if errors.Is(err, assignment.ErrInconsistentState) {
		e.log.Error("unrecoverable assignment state", slog.Int64("user", user.TelegramID))
		return
	}
	if err != nil {
		e.log.Error("loading current assignment", slog.Int64("user", user.TelegramID), sl.Err(err))
		e.replyTransient(user)
		return
	}

	if current.State == storage.StateSubmitted {
		e.send(user, locale.Text(locale.NextAfterDone, user.Language))
	} else {
		e.send(user, locale.Text(locale.NextAfterDecline, user.Language))
	}

	if err := e.assignments.Advance(ctx, current); err != nil {
		e.log.Error("advancing assignment", slog.String("assignment", current.ID), sl.Err(err))
		e.replyTransient(user)
		return
	}

	e.assignAndSend(ctx, user)
}

// assignAndSend opens the next assignment and delivers it with the
// "I want another one" button attached.
func (e *Engine) assignAndSend(ctx context.Context, user *storage.User) {
	a, topic, err := e.assignments.Assign(ctx, user.TelegramID)
	if errors.Is(err, assignment.ErrTopicsExhausted) {
		e.send(user, locale.Text(locale.TopicsExhausted, user.Language))
		return
	}
	if errors.Is(err, assignment.ErrAlreadyAssigned) {
		e.log.Error("assignment invariant violated on create", slog.Int64("user", user.TelegramID))
		return
	}
	if err != nil {
		e.log.Error("assigning topic", slog.Int64("user", user.TelegramID), sl.Err(err))
		e.replyTransient(user)
		return
	}

	body := locale.Text(locale.AssignmentBody, user.Language,
		topic.LocalTitle(user.Language),
		topic.LocalDescription(user.Language),
		topic.LocalKeywords(user.Language),
	)
	messageID, err := e.transport.SendTextWithActions(user.ChatID, body, core.Action{
		Label: locale.Text(locale.ButtonAnother, user.Language),
		ID:    core.ActionNewAssignment,
	})
	if err != nil {
		e.log.Error("sending assignment", slog.Int64("user", user.TelegramID), sl.Err(err))
		return
	}
	if err := e.assignments.SetMessageRef(ctx, a, messageID); err != nil {
		e.log.Error("saving message ref", slog.String("assignment", a.ID), sl.Err(err))
	}
}

func (e *Engine) extractFromPhoto(ctx context.Context, ref string) (string, error) {
	image, err := e.transport.DownloadMedia(ref)
	if err != nil {
		return "", fmt.Errorf("downloading photo: %w", err)
	}
	text, err := e.ai.ExtractText(ctx, image)
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return text, nil
}

func (e *Engine) topicOf(ctx context.Context, a *storage.Assignment) (*storage.Topic, error) {
	topic, err := e.store.GetTopic(ctx, a.TopicID)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, fmt.Errorf("topic %s not found", a.TopicID)
	}
	return topic, nil
}

func (e *Engine) rejectionText(r *assignment.Rejection, topic *storage.Topic, lang core.Language) string {
	switch r.Reason {
	case assignment.TooShort:
		return locale.Text(locale.TooShort, lang, e.validator.MinLength())
	case assignment.TooLong:
		return locale.Text(locale.TooLong, lang, e.validator.MaxLength())
	default:
		return locale.Text(locale.OffTopic, lang, topic.LocalTitle(lang))
	}
}

func (e *Engine) sendLanguageChoice(user *storage.User) {
	_, err := e.transport.SendTextWithActions(user.ChatID,
		locale.Text(locale.LanguagePrompt, user.Language),
		core.Action{Label: "🇬🇧 English", ID: core.LanguageActionID(core.LangEN)},
		core.Action{Label: "🇷🇺 Русский", ID: core.LanguageActionID(core.LangRU)},
		core.Action{Label: "🇩🇪 Deutsch", ID: core.LanguageActionID(core.LangDE)},
	)
	if err != nil {
		e.log.Error("sending language choice", slog.Int64("user", user.TelegramID), sl.Err(err))
	}
}

func (e *Engine) getOrCreateUser(ctx context.Context, origin core.Origin) (*storage.User, bool, error) {
	user, err := e.store.GetUser(ctx, origin.UserID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	user = &storage.User{
		TelegramID: origin.UserID,
		ChatID:     origin.ChatID,
		Username:   origin.Username,
		Language:   core.LangEN,
		CreatedAt:  time.Now(),
	}
	if err := e.store.SaveUser(ctx, user); err != nil {
		return nil, false, err
	}
	e.log.With(
		slog.Int64("user", user.TelegramID),
		slog.String("username", user.Username),
	).Info("new user")
	return user, true, nil
}

func (e *Engine) send(user *storage.User, text string) {
	if err := e.transport.SendText(user.ChatID, text); err != nil {
		e.log.Error("sending message", slog.Int64("user", user.TelegramID), sl.Err(err))
	}
}

func (e *Engine) replyTransient(user *storage.User) {
	e.send(user, locale.Text(locale.TryAgain, user.Language))
}
