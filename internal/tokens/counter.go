// Package tokens estimates prompt sizes for the chat messages sent upstream.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

// Per-message framing overhead used by OpenAI-style chat formats.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// Counter counts prompt tokens with tiktoken. Models routed through
// OpenRouter carry a vendor prefix ("openai/gpt-4o"); non-OpenAI models are
// counted with cl100k_base, which is close enough for cost estimates.
type Counter struct {
	// codecCache caches tokenizer codecs by encoding name
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex

	// CharsPerToken is used when no codec can be loaded.
	CharsPerToken float64
}

// NewCounter creates a new token counter.
func NewCounter() *Counter {
	return &Counter{
		codecCache:    make(map[tokenizer.Encoding]tokenizer.Codec),
		CharsPerToken: 4.0,
	}
}

// CountMessages returns the prompt token count for messages sent to model.
func (c *Counter) CountMessages(model string, messages []domain.Message) int {
	codec, err := c.getCodec(model)
	if err != nil {
		return c.estimate(messages)
	}

	total := tokensPerReply
	for _, m := range messages {
		total += tokensPerMessage
		total += countText(codec, string(m.Role))
		total += countText(codec, m.Content)
	}
	return total
}

// Cost returns the estimated spend for tokens at the agent's per-1k rate.
func Cost(agent domain.Agent, tokens int) float64 {
	return float64(tokens) / 1000 * agent.CostPer1K
}

func countText(codec tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

func (c *Counter) estimate(messages []domain.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Role) + len(m.Content) + 4
	}
	return int(float64(chars) / c.CharsPerToken)
}

// getCodec returns the tokenizer codec for a model.
func (c *Counter) getCodec(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// modelToEncoding maps model names to encodings.
//
// Encoding reference:
// - O200kBase: GPT-4o, GPT-4.1, O-series and newer
// - Cl100kBase: GPT-4, GPT-3.5-turbo and everything that is not OpenAI
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}

	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	default:
		return tokenizer.Cl100kBase
	}
}
