package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
	"github.com/xkilldash9x/mailpilot/internal/mocks"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{ExtractTemperature: 0.1, ParaphraseTemperature: 0.2}
}

func isExtractRequest(req schemas.GenerationRequest) bool {
	return req.Options.ForceJSONFormat && req.SystemPrompt == extractSystemPrompt
}

func TestExtractFallback(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    schemas.ParsedIntent
		wantErr bool
	}{
		{
			name: "single quoted message keeps apostrophes",
			text: "Email dana@example.com saying 'Let's meet Friday'",
			want: schemas.ParsedIntent{Recipient: "dana@example.com", Message: "Let's meet Friday", RecipientName: "Dana"},
		},
		{
			name: "double quoted message",
			text: `send to bob.jones@corp.io saying "Build is green"`,
			want: schemas.ParsedIntent{Recipient: "bob.jones@corp.io", Message: "Build is green", RecipientName: "Bob"},
		},
		{
			name: "colon suffix message",
			text: "Write to ana@example.org: the report is attached",
			want: schemas.ParsedIntent{Recipient: "ana@example.org", Message: "the report is attached", RecipientName: "Ana"},
		},
		{
			name: "whole text when no message form matches",
			text: "ping sam@example.com about lunch",
			want: schemas.ParsedIntent{Recipient: "sam@example.com", Message: "ping sam@example.com about lunch", RecipientName: "Sam"},
		},
		{
			name: "subject after a colon",
			text: "Email dana@example.com subject: Lunch plans",
			want: schemas.ParsedIntent{Recipient: "dana@example.com", Subject: "Lunch plans", Message: "Lunch plans", RecipientName: "Dana"},
		},
		{
			name: "single quoted message stops before a quoted subject",
			text: "Email dana@example.com saying 'hi there' with subject: 'Greeting'",
			want: schemas.ParsedIntent{Recipient: "dana@example.com", Subject: "Greeting", Message: "hi there", RecipientName: "Dana"},
		},
		{
			name: "single quoted message stops at its closing quote",
			text: "Email dana@example.com saying 'on it' and cc 'ops'",
			want: schemas.ParsedIntent{Recipient: "dana@example.com", Message: "on it", RecipientName: "Dana"},
		},
		{
			name: "possessive before the closing quote",
			text: "Email dana@example.com saying 'see you at Bob's'",
			want: schemas.ParsedIntent{Recipient: "dana@example.com", Message: "see you at Bob's", RecipientName: "Dana"},
		},
		{
			name: "trailing sentence dot is not part of the address",
			text: "Please email dana@example.com.",
			want: schemas.ParsedIntent{Recipient: "dana@example.com", Message: "Please email dana@example.com.", RecipientName: "Dana"},
		},
		{
			name:    "no address",
			text:    "tell Dana we are late",
			wantErr: true,
		},
		{
			name:    "unqualified domain",
			text:    "email dana@localhost saying 'hi'",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractFallback(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, schemas.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()
	const instruction = "Email dana@example.com saying 'Let's meet Friday'"

	t.Run("nil model uses the fallback", func(t *testing.T) {
		e := NewExtractor(nil, testLLMConfig(), zaptest.NewLogger(t))
		got, err := e.Extract(ctx, instruction)
		require.NoError(t, err)
		assert.Equal(t, "dana@example.com", got.Recipient)
		assert.Equal(t, "Let's meet Friday", got.Message)
		assert.Equal(t, "Dana", got.RecipientName)
	})

	t.Run("model output is used when valid", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", mock.Anything, mock.MatchedBy(isExtractRequest)).
			Return("```json\n{\"recipient\":\"dana@example.com\",\"subject\":\"Friday\",\"message\":\"Let's meet Friday\"}\n```", nil).
			Once()

		e := NewExtractor(llm, testLLMConfig(), zaptest.NewLogger(t))
		got, err := e.Extract(ctx, instruction)
		require.NoError(t, err)
		assert.Equal(t, schemas.ParsedIntent{
			Recipient:     "dana@example.com",
			Subject:       "Friday",
			Message:       "Let's meet Friday",
			RecipientName: "Dana",
		}, got)
		llm.AssertExpectations(t)
	})

	fallbackCases := map[string]struct {
		out string
		err error
	}{
		"transport error":   {err: errors.New("connection refused")},
		"malformed json":    {out: "sure! here you go"},
		"invalid recipient": {out: `{"recipient":"dana","message":"hi"}`},
		"missing message":   {out: `{"recipient":"dana@example.com"}`},
	}
	for name, tc := range fallbackCases {
		tc := tc
		t.Run("falls back on "+name, func(t *testing.T) {
			llm := new(mocks.MockLLMClient)
			llm.On("Generate", mock.Anything, mock.Anything).Return(tc.out, tc.err).Once()

			e := NewExtractor(llm, testLLMConfig(), zaptest.NewLogger(t))
			got, err := e.Extract(ctx, instruction)
			require.NoError(t, err)
			assert.Equal(t, "Let's meet Friday", got.Message)
			assert.Empty(t, got.Subject)
		})
	}

	t.Run("fallback validation error surfaces", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("down")).Once()

		e := NewExtractor(llm, testLLMConfig(), zaptest.NewLogger(t))
		_, err := e.Extract(ctx, "say hello to Dana")
		assert.ErrorIs(t, err, schemas.ErrValidation)
	})
}

func TestExtractor_Paraphrase(t *testing.T) {
	ctx := context.Background()

	t.Run("without a model the message is unchanged", func(t *testing.T) {
		e := NewExtractor(nil, testLLMConfig(), zaptest.NewLogger(t))
		assert.Equal(t, "see you", e.Paraphrase(ctx, "see you"))
	})

	t.Run("model rewrite is trimmed", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
			return !req.Options.ForceJSONFormat && req.UserPrompt == "see you" && req.Options.Temperature == 0.2
		})).Return("  I look forward to seeing you.\n", nil).Once()

		e := NewExtractor(llm, testLLMConfig(), zaptest.NewLogger(t))
		assert.Equal(t, "I look forward to seeing you.", e.Paraphrase(ctx, "see you"))
		llm.AssertExpectations(t)
	})

	t.Run("model error keeps the original", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota")).Once()

		e := NewExtractor(llm, testLLMConfig(), zaptest.NewLogger(t))
		assert.Equal(t, "see you", e.Paraphrase(ctx, "see you"))
	})

	t.Run("empty rewrite keeps the original", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", mock.Anything, mock.Anything).Return("   ", nil).Once()

		e := NewExtractor(llm, testLLMConfig(), zaptest.NewLogger(t))
		assert.Equal(t, "see you", e.Paraphrase(ctx, "see you"))
	})
}

func TestFillPlaceholders(t *testing.T) {
	msg := "Hi [Recipient's Name], see you Friday. Best, [Your Name]"

	assert.Equal(t, "Hi Dana, see you Friday. Best, Elijah", FillPlaceholders(msg, "Dana", "Elijah"))
	assert.Equal(t, "Hi Dana, see you Friday. Best, [Your Name]", FillPlaceholders(msg, "Dana", ""))
	assert.Equal(t, msg, FillPlaceholders(msg, "", ""))
}
