package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/vigilhq/vigil/config"
	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/internal/httpclient"
	"github.com/vigilhq/vigil/rules"
)

// OpenAIGenerator renders a trigger's prompt template and asks a
// chat-completion endpoint to compose the notification body.
//
// The prompt is a text/template with two bindings: .Events (the cycle's
// trigger events) and .Recipient (the destination address). A tojson
// function is available for embedding events as raw JSON.
type OpenAIGenerator struct {
	cfg    config.OpenAIConfig
	client *httpclient.Client
	logger *zap.SugaredLogger
}

// NewOpenAIGenerator creates a generator from process configuration
func NewOpenAIGenerator(cfg config.OpenAIConfig, logger *zap.SugaredLogger) *OpenAIGenerator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIGenerator{
		cfg:    cfg,
		client: httpclient.New(timeout),
		logger: logger,
	}
}

// promptData is the binding environment for prompt templates
type promptData struct {
	Events    []rules.TriggerEvent
	Recipient string
}

var promptFuncs = template.FuncMap{
	"tojson": func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// chatCompletionRequest is the body of a chat completions call
type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateEmail renders the job's prompt and requests a completion
func (g *OpenAIGenerator) GenerateEmail(ctx context.Context, spec rules.EmailJobSpec, events []rules.TriggerEvent) (string, error) {
	if g.cfg.APIKey == "" {
		return "", errors.Wrap(errors.ErrGeneration, "OpenAI API key not configured")
	}

	prompt, err := g.renderPrompt(spec, events)
	if err != nil {
		return "", err
	}
	g.logger.Debugw("Rendered notification prompt",
		"recipient", spec.Address,
		"prompt_length", len(prompt),
	)

	body, err := json.Marshal(chatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(errors.ErrGeneration, "completion request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read completion response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(errors.ErrGeneration, "completion returned status %d: %s",
			resp.StatusCode, string(respBody))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", errors.Wrap(err, "failed to decode completion response")
	}
	if len(completion.Choices) == 0 {
		return "", errors.Wrap(errors.ErrGeneration, "no response choices")
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// renderPrompt executes the job's prompt template against this cycle's events
func (g *OpenAIGenerator) renderPrompt(spec rules.EmailJobSpec, events []rules.TriggerEvent) (string, error) {
	tmpl, err := template.New("prompt").Funcs(promptFuncs).Parse(spec.Prompt)
	if err != nil {
		return "", errors.Wrapf(errors.ErrGeneration, "malformed prompt template: %v", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{Events: events, Recipient: spec.Address}); err != nil {
		return "", errors.Wrapf(errors.ErrGeneration, "prompt template execution failed: %v", err)
	}
	return buf.String(), nil
}
