package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/twinlab/digital-twin/internal/apperr"
)

const (
	MaxPromptChars     = 8000
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7
	MaxTemperature     = 2.0

	DefaultSystemPrompt = "You are an AI digital twin. Answer questions as if you are the person, " +
		"speaking in first person about your background, skills, and experience."
)

// Request is a single generation call. Zero fields take the service defaults,
// except Temperature where zero means deterministic sampling.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	Temperature  float32
	MaxTokens    int
}

// NewRequest returns a request with the default temperature and token limit.
func NewRequest(prompt string) Request {
	return Request{
		Prompt:      prompt,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// prepare validates r and fills defaults. Prompts longer than
// MaxPromptChars are cut to exactly MaxPromptChars characters.
func (r Request) prepare(defaultModel string) (Request, bool, error) {
	const op = "llm.generate"
	if strings.TrimSpace(r.Prompt) == "" {
		return r, false, apperr.New(apperr.KindInvalidArgument, op, "prompt cannot be empty")
	}
	if r.Temperature < 0 || r.Temperature > MaxTemperature {
		return r, false, apperr.Newf(apperr.KindInvalidArgument, op, "temperature must be between 0 and %.1f", MaxTemperature)
	}
	if r.MaxTokens < 0 {
		return r, false, apperr.New(apperr.KindInvalidArgument, op, "max tokens cannot be negative")
	}

	truncated := false
	if utf8.RuneCountInString(r.Prompt) > MaxPromptChars {
		r.Prompt = string([]rune(r.Prompt)[:MaxPromptChars])
		truncated = true
	}
	if r.SystemPrompt == "" {
		r.SystemPrompt = DefaultSystemPrompt
	}
	if r.Model == "" {
		r.Model = defaultModel
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r, truncated, nil
}
