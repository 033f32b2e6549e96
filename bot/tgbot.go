package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"Sochinenie/core"
	"Sochinenie/lib/sl"
)

type TgBot struct {
	conf    *core.Config
	log     *slog.Logger
	api     *tgbotapi.BotAPI
	handler core.Handler
	stop    chan struct{}
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, err
	}

	return &TgBot{
		conf: conf,
		log:  log.With(sl.Module("bot")),
		api:  api,
		stop: make(chan struct{}),
	}, nil
}

// SetHandler sets the consumer of decoded events.
func (t *TgBot) SetHandler(handler core.Handler) {
	t.handler = handler
}

func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}

	for {
		select {
		case update := <-updates:
			event, ok := t.decode(update)
			if !ok {
				continue
			}
			go t.dispatch(event)
		case <-t.stop:
			return nil
		}
	}
}

func (t *TgBot) Stop() {
	close(t.stop)
}

// decode turns a raw update into exactly one event variant. Decoding
// happens here and nowhere else; the engine never sees raw updates.
func (t *TgBot) decode(update tgbotapi.Update) (core.Event, bool) {
	if update.CallbackQuery != nil {
		return t.decodeCallback(update.CallbackQuery)
	}
	if update.Message == nil {
		return nil, false
	}

	incoming := update.Message
	if !incoming.Chat.IsPrivate() {
		// Assignments are a one-on-one affair.
		return nil, false
	}

	origin := core.Origin{
		UserID:   int64(incoming.From.ID),
		ChatID:   incoming.Chat.ID,
		Username: incoming.From.UserName,
	}

	if incoming.IsCommand() {
		switch incoming.Command() {
		case "start", "language":
			return core.StartEvent{Origin: origin}, true
		}
		return core.UnknownEvent{Origin: origin, Payload: incoming.Text}, true
	}

	if incoming.Photo != nil && len(*incoming.Photo) > 0 {
		return core.SubmissionEvent{Origin: origin, PhotoRef: largestPhoto(*incoming.Photo)}, true
	}

	text := strings.TrimSpace(incoming.Text)
	if text != "" {
		logText := text
		if len(logText) > 50 {
			logText = logText[:50] + "..."
		}
		t.log.With(
			slog.String("username", origin.Username),
			slog.String("text", logText),
		).Debug("incoming message")
		return core.SubmissionEvent{Origin: origin, Text: text}, true
	}

	return nil, false
}

func (t *TgBot) decodeCallback(cq *tgbotapi.CallbackQuery) (core.Event, bool) {
	// Acknowledge right away so the button stops spinning.
	if _, err := t.api.AnswerCallbackQuery(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		t.log.Error("answering callback", sl.Err(err))
	}

	if cq.Message == nil {
		return nil, false
	}
	origin := core.Origin{
		UserID:   int64(cq.From.ID),
		ChatID:   cq.Message.Chat.ID,
		Username: cq.From.UserName,
	}

	if lang, ok := core.ParseLanguageAction(cq.Data); ok {
		return core.LanguageSelectEvent{
			Origin:    origin,
			Language:  lang,
			MessageID: cq.Message.MessageID,
		}, true
	}
	if cq.Data == core.ActionNewAssignment {
		return core.ContinueEvent{Origin: origin, MessageID: cq.Message.MessageID}, true
	}
	return core.UnknownEvent{Origin: origin, Payload: cq.Data}, true
}

// dispatch runs the handler with a typing indicator ticking for as long
// as the handling takes; AI calls can run tens of seconds.
func (t *TgBot) dispatch(event core.Event) {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.sendChatAction(event.From().ChatID, "typing")
			case <-done:
				return
			}
		}
	}()

	t.handler.Handle(context.Background(), event)
	close(done)
}

func (t *TgBot) sendChatAction(chatID int64, action string) {
	msg := tgbotapi.NewChatAction(chatID, action)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending chat action", sl.Err(err))
	}
}

func (t *TgBot) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (t *TgBot) SendTextWithActions(chatID int64, text string, actions ...core.Action) (int, error) {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, action := range actions {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(action.Label, action.ID))
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))

	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sending message: %w", err)
	}
	return sent.MessageID, nil
}

// ClearActions strips the inline keyboard from an earlier message.
func (t *TgBot) ClearActions(chatID int64, messageID int) error {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)
	if _, err := t.api.Send(edit); err != nil {
		return fmt.Errorf("clearing keyboard: %w", err)
	}
	return nil
}

// DownloadMedia fetches a file from Telegram by its file id.
func (t *TgBot) DownloadMedia(ref string) ([]byte, error) {
	url, err := t.api.GetFileDirectURL(ref)
	if err != nil {
		return nil, fmt.Errorf("resolving file url: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.log.Error("closing download body", sl.Err(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// largestPhoto picks the highest-resolution variant Telegram offers.
func largestPhoto(photos []tgbotapi.PhotoSize) string {
	best := photos[0]
	for _, p := range photos[1:] {
		if p.FileSize > best.FileSize {
			best = p
		}
	}
	return best.FileID
}
