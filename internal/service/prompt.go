package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// DefaultInstruction keeps the model inside the retrieved context.
const DefaultInstruction = "Answer using only the provided context. If the answer is not in the context, say that you don't know."

// ChatClient generates a single completion.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type PromptConfig struct {
	Instruction string
	// Language, when set, asks the model to answer in that language.
	Language string
}

// Answer is the model output and the metadata of every chunk it was given.
type Answer struct {
	Text    string
	Sources []domain.ChunkMetadata
}

type AnswerComposer struct {
	chat        ChatClient
	instruction string
}

func NewAnswerComposer(chat ChatClient, cfg PromptConfig) *AnswerComposer {
	instruction := strings.TrimSpace(cfg.Instruction)
	if instruction == "" {
		instruction = DefaultInstruction
	}
	if lang := strings.TrimSpace(cfg.Language); lang != "" {
		instruction += " Answer in " + lang + "."
	}
	return &AnswerComposer{chat: chat, instruction: instruction}
}

// BuildContext joins chunk texts in search order, separated by blank lines.
func BuildContext(results []domain.QueryResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n\n")
}

func (c *AnswerComposer) BuildPrompt(question string, results []domain.QueryResult) string {
	var b strings.Builder
	b.WriteString(c.instruction)
	b.WriteString("\n\nContext:\n")
	b.WriteString(BuildContext(results))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// Compose asks the chat model once. The context is passed through untruncated.
func (c *AnswerComposer) Compose(ctx context.Context, question string, results []domain.QueryResult) (*Answer, error) {
	text, err := c.chat.Complete(ctx, c.BuildPrompt(question, results))
	if err != nil {
		return nil, domain.Upstream("generate answer", err)
	}

	sources := make([]domain.ChunkMetadata, len(results))
	for i, r := range results {
		sources[i] = r.Metadata
	}
	return &Answer{Text: text, Sources: sources}, nil
}
