package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"Sochinenie/core"
	"Sochinenie/lib/sl"
)

const apiURL = "https://api.openai.com/v1/chat/completions"

// noTextMarker is what the extraction prompt tells the model to answer
// when an image carries no readable text.
const noTextMarker = "NO_TEXT"

type ChatGPT struct {
	conf       *core.Config
	log        *slog.Logger
	httpClient *http.Client
}

func NewChat(conf *core.Config, log *slog.Logger) *ChatGPT {
	return &ChatGPT{
		conf: conf,
		log:  log.With(sl.Module("chat-gpt")),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// IsRelevant asks the model whether the text addresses the topic. An
// answer that is neither YES nor NO is an error, not a verdict.
func (c *ChatGPT) IsRelevant(ctx context.Context, text, topic string) (bool, error) {
	prompt := "You are checking a German writing exercise. The assigned topic is:\n" +
		topic +
		"\n\nDecide whether the following text addresses that topic. " +
		"Answer with exactly one word: YES or NO.\n\nText:\n" + text

	answer, err := c.complete(ctx, NewRequest(prompt))
	if err != nil {
		return false, err
	}

	switch strings.ToUpper(strings.TrimSpace(answer)) {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	}
	return false, fmt.Errorf("relevance check: unexpected answer %q", answer)
}

// GenerateFeedback returns teacher-style feedback on a German essay.
func (c *ChatGPT) GenerateFeedback(ctx context.Context, text string) (string, error) {
	prompt := "Act as a German language teacher. A student handed in the essay below. " +
		"Point out grammatical and stylistic mistakes, show the corrected versions, " +
		"and finish with one short piece of encouragement. " +
		"Answer in German with simple wording a learner can follow.\n\nEssay:\n" + text

	return c.complete(ctx, NewRequest(prompt))
}

// ExtractText transcribes handwriting from an image. An empty result
// means the model found no readable text.
func (c *ChatGPT) ExtractText(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	request := &ChatRequest{
		Messages: []ChatMessage{{
			Role: "user",
			Content: []ContentPart{
				{
					Type: "text",
					Text: "Transcribe the handwritten or printed text in this image. " +
						"Reply with the text only, no commentary. " +
						"If there is no readable text, reply with exactly " + noTextMarker + ".",
				},
				{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}},
			},
		}},
	}

	answer, err := c.complete(ctx, request)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == noTextMarker {
		return "", nil
	}
	return answer, nil
}

// complete sends a chat completion request, retrying transient failures
// with exponential backoff. Client errors are permanent: retrying a bad
// request will not make it good.
func (c *ChatGPT) complete(ctx context.Context, request *ChatRequest) (string, error) {
	if request.Model == "" {
		request.Model = c.conf.Model
	}
	jsonBytes, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonBytes))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("making request: %w", err))
		}
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.conf.OpenAIApiKey))
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("getting response: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				c.log.Error("closing response body", sl.Err(err))
			}
		}()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 90 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return "", err
	}

	var chatCompletion ChatCompletion
	if err := json.Unmarshal(body, &chatCompletion); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if chatCompletion.Error != nil {
		return "", fmt.Errorf("chat completion: %s", chatCompletion.Error.Message)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	response := chatCompletion.Choices[0].Message.Content

	logText := response
	if len(logText) > 50 {
		logText = logText[:50] + "..."
	}
	c.log.With(
		slog.String("model", chatCompletion.Model),
		slog.String("text", logText),
	).Debug("chat completion")

	return response, nil
}
