package engine

import (
	"encoding/json"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const (
	ProviderProxy  = "proxy"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Sampling carries the generation knobs shared by every provider.
type Sampling struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Envelope adapts one provider's request and response bodies.
type Envelope struct {
	Encode  func(model string, msgs []records.Message, s Sampling) any
	Content func(body []byte) (string, error)
}

var envelopes = map[string]Envelope{
	ProviderProxy:  {Encode: encodeProxy, Content: chatContent},
	ProviderOpenAI: {Encode: encodeOpenAI, Content: chatContent},
	ProviderOllama: {Encode: encodeOllama, Content: ollamaContent},
}

// EnvelopeFor returns the envelope for a provider tag. Unknown or blank tags
// use the proxy envelope.
func EnvelopeFor(provider string) Envelope {
	if env, ok := envelopes[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return env
	}
	return envelopes[ProviderProxy]
}

// KnownProvider reports whether a provider tag has its own envelope.
func KnownProvider(provider string) bool {
	_, ok := envelopes[strings.ToLower(strings.TrimSpace(provider))]
	return ok
}

// ---------------- Requests ----------------

type proxyOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	Model       string  `json:"model,omitempty"`
}

type proxyRequest struct {
	Messages []records.Message `json:"messages"`
	Options  proxyOptions      `json:"options"`
}

func encodeProxy(model string, msgs []records.Message, s Sampling) any {
	return proxyRequest{
		Messages: msgs,
		Options: proxyOptions{
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
			TopP:        s.TopP,
			Model:       model,
		},
	}
}

type openAIRequest struct {
	Model       string            `json:"model,omitempty"`
	Messages    []records.Message `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature"`
	TopP        float64           `json:"top_p,omitempty"`
}

func encodeOpenAI(model string, msgs []records.Message, s Sampling) any {
	return openAIRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		TopP:        s.TopP,
	}
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
}

type ollamaRequest struct {
	Model    string            `json:"model,omitempty"`
	Messages []records.Message `json:"messages"`
	Stream   bool              `json:"stream"`
	Options  ollamaOptions     `json:"options"`
}

func encodeOllama(model string, msgs []records.Message, s Sampling) any {
	return ollamaRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options: ollamaOptions{
			NumPredict:  s.MaxTokens,
			Temperature: s.Temperature,
			TopP:        s.TopP,
		},
	}
}

// ---------------- Responses ----------------

type contentHolder struct {
	Content json.RawMessage `json:"content,omitempty"`
}

type chatReply struct {
	Choices []struct {
		Message contentHolder `json:"message"`
		Delta   contentHolder `json:"delta"`
		Text    string        `json:"text,omitempty"`
	} `json:"choices"`
	Message    contentHolder `json:"message"`
	OutputText string        `json:"output_text,omitempty"`
	Response   string        `json:"response,omitempty"`
}

// chatContent reads choices[].message.content, then choices[].delta.content,
// then choices[].text, then the top-level message/output_text fields some
// proxies return.
func chatContent(body []byte) (string, error) {
	var r chatReply
	if err := json.Unmarshal(body, &r); err != nil {
		return "", err
	}
	for _, c := range r.Choices {
		if s := contentText(c.Message.Content); s != "" {
			return s, nil
		}
		if s := contentText(c.Delta.Content); s != "" {
			return s, nil
		}
		if strings.TrimSpace(c.Text) != "" {
			return c.Text, nil
		}
	}
	if s := contentText(r.Message.Content); s != "" {
		return s, nil
	}
	if strings.TrimSpace(r.OutputText) != "" {
		return r.OutputText, nil
	}
	return "", ErrEmptyContent
}

func ollamaContent(body []byte) (string, error) {
	var r chatReply
	if err := json.Unmarshal(body, &r); err != nil {
		return "", err
	}
	if s := contentText(r.Message.Content); s != "" {
		return s, nil
	}
	if strings.TrimSpace(r.Response) != "" {
		return r.Response, nil
	}
	return chatContent(body)
}

// contentText accepts a plain string or an array of {type,text} parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return ""
		}
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return ""
	}
	return b.String()
}
