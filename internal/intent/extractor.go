// Package intent turns a free-form instruction into a ParsedIntent and
// polishes the message body before it is typed into a mailbox.
package intent

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
	"github.com/xkilldash9x/mailpilot/internal/llmutil"
)

const extractSystemPrompt = "You extract JSON with keys: recipient (email), recipient_name (if guessable), " +
	"subject (optional), message (string). " +
	"If subject is missing, infer a concise one (<=8 words). " +
	"If recipient_name is missing, try to infer it from the email (e.g., dana@example.com -> Dana). " +
	"Return ONLY JSON."

const paraphraseSystemPrompt = "Rewrite the message to be professional, clear, positive, and concise. " +
	"Return only the rewritten message."

// Placeholders a model may leave in a paraphrased message.
const (
	RecipientPlaceholder = "[Recipient's Name]"
	SenderPlaceholder    = "[Your Name]"
)

// extraction mirrors the JSON object the model is asked to return.
type extraction struct {
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipient_name"`
	Subject       string `json:"subject"`
	Message       string `json:"message"`
}

// Extractor understands instructions using an optional language model. A nil
// model means every call takes the rule-based path.
type Extractor struct {
	llm    schemas.LLMClient
	cfg    config.LLMConfig
	logger *zap.Logger
}

// NewExtractor creates an Extractor. llm may be nil.
func NewExtractor(llm schemas.LLMClient, cfg config.LLMConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		llm:    llm,
		cfg:    cfg,
		logger: logger.Named("intent"),
	}
}

// Extract returns the intent expressed by text. Model failures of any kind
// (transport, malformed JSON, invalid recipient) fall through to
// ExtractFallback; only the fallback's validation error is returned.
func (e *Extractor) Extract(ctx context.Context, text string) (schemas.ParsedIntent, error) {
	if e.llm != nil {
		parsed, err := e.extractWithModel(ctx, text)
		if err == nil {
			return parsed, nil
		}
		if errors.Is(err, context.Canceled) {
			return schemas.ParsedIntent{}, err
		}
		e.logger.Warn("Model extraction unusable, falling back to pattern matching.", zap.Error(err))
	}
	return ExtractFallback(text)
}

func (e *Extractor) extractWithModel(ctx context.Context, text string) (schemas.ParsedIntent, error) {
	raw, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   text,
		Options: schemas.GenerationOptions{
			Temperature:     e.cfg.ExtractTemperature,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.ParsedIntent{}, err
	}

	out, err := llmutil.ParseObject[extraction](raw)
	if err != nil {
		return schemas.ParsedIntent{}, err
	}
	if strings.TrimSpace(out.Message) == "" {
		return schemas.ParsedIntent{}, errors.New("model output has no message")
	}
	return schemas.NewParsedIntent(out.Recipient, out.Subject, strings.TrimSpace(out.Message), out.RecipientName)
}

// Paraphrase rewrites message in a professional tone. It never fails: without
// a model, or on any model error, the input is returned unchanged.
func (e *Extractor) Paraphrase(ctx context.Context, message string) string {
	if e.llm == nil || strings.TrimSpace(message) == "" {
		return message
	}
	out, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: paraphraseSystemPrompt,
		UserPrompt:   message,
		Options:      schemas.GenerationOptions{Temperature: e.cfg.ParaphraseTemperature},
	})
	if err != nil {
		e.logger.Warn("Paraphrase failed, keeping the original message.", zap.Error(err))
		return message
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return message
	}
	return out
}

// FillPlaceholders substitutes the greeting and signature placeholders. An
// empty replacement leaves that placeholder in place.
func FillPlaceholders(message, recipientName, senderName string) string {
	pairs := make([]string, 0, 4)
	if recipientName != "" {
		pairs = append(pairs, RecipientPlaceholder, recipientName)
	}
	if senderName != "" {
		pairs = append(pairs, SenderPlaceholder, senderName)
	}
	if len(pairs) == 0 {
		return message
	}
	return strings.NewReplacer(pairs...).Replace(message)
}
