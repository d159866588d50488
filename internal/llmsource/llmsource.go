// Package llmsource streams chat model output as speakable text.
package llmsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/text"
)

const DefaultSystemPrompt = "You are a helpful assistant. Answer in plain spoken sentences."

// Streamer is the part of an eino chat model the source needs.
type Streamer interface {
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// Source turns a prompt into a sequence of plain-text deltas.
type Source struct {
	model  Streamer
	prompt string
	log    *zap.SugaredLogger
}

// NewOpenAI builds a Source on an OpenAI-compatible chat endpoint.
func NewOpenAI(ctx context.Context, cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key is required")
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return New(chatModel, cfg.SystemPrompt), nil
}

func New(m Streamer, systemPrompt string) *Source {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Source{model: m, prompt: systemPrompt, log: logging.Component("llmsource")}
}

// Stream asks the model and calls emit with Markdown-free text as it
// becomes safe to release. emit errors stop the stream.
func (s *Source) Stream(ctx context.Context, question string, emit func(string) error) error {
	messages := []*schema.Message{
		schema.SystemMessage(s.prompt),
		schema.UserMessage(question),
	}
	stream, err := s.model.Stream(ctx, messages)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Close()

	var f filter
	deltas := 0
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		deltas++
		if out := f.push(msg.Content); out != "" {
			if err := emit(out); err != nil {
				return err
			}
		}
	}
	s.log.Debugw("llm stream finished", "deltas", deltas)
	if out := f.flush(); out != "" {
		return emit(out)
	}
	return nil
}

// filter holds back model tokens until a Markdown construct cannot be
// split by releasing them.
type filter struct {
	pending strings.Builder
}

func (f *filter) push(delta string) string {
	f.pending.WriteString(delta)
	buf := f.pending.String()
	cut := releasePoint(buf)
	if cut <= 0 {
		return ""
	}
	f.pending.Reset()
	f.pending.WriteString(buf[cut:])
	return text.StripMarkdown(buf[:cut])
}

func (f *filter) flush() string {
	buf := f.pending.String()
	f.pending.Reset()
	return text.StripMarkdown(buf)
}

// releasePoint returns the byte index after the last line break or
// sentence end whose prefix has no open code fence.
func releasePoint(buf string) int {
	for i := len(buf) - 1; i >= 0; i-- {
		if !boundaryAt(buf, i) {
			continue
		}
		prefix := buf[:i+1]
		if strings.Count(prefix, "```")%2 == 0 {
			return i + 1
		}
	}
	return 0
}

func boundaryAt(buf string, i int) bool {
	if buf[i] == '\n' {
		return true
	}
	if buf[i] != ' ' || i == 0 {
		return false
	}
	switch buf[i-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
