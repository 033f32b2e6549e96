package core

import "context"

// Handler consumes decoded inbound events. Implemented by the engine,
// called by the transport.
type Handler interface {
	Handle(ctx context.Context, event Event)
}

// Action is one inline button: a label the user sees and the callback
// id that comes back when it is pressed.
type Action struct {
	Label string
	ID    string
}

// Transport is the outbound side of the messaging layer.
type Transport interface {
	SendText(chatID int64, text string) error
	// SendTextWithActions attaches a row of inline buttons and returns
	// the id of the sent message so the buttons can be stripped later.
	SendTextWithActions(chatID int64, text string, actions ...Action) (int, error)
	ClearActions(chatID int64, messageID int) error
	DownloadMedia(ref string) ([]byte, error)
}

// Assistant is the language-capability service. Every call may fail
// with a transient error, which is distinct from a negative result.
type Assistant interface {
	// ExtractText transcribes handwriting from an image. An empty string
	// means the image carried no readable text.
	ExtractText(ctx context.Context, image []byte) (string, error)
	IsRelevant(ctx context.Context, text, topic string) (bool, error)
	GenerateFeedback(ctx context.Context, text string) (string, error)
}
