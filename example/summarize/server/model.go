package main

import (
	"context"
	"strings"

	"langrpc/rpc/message"
)

// leadModel stands in for a chat model: it answers with the first
// sentences of the text following the prompt's instruction line.
type leadModel struct {
	sentences int
}

func (m leadModel) Invoke(ctx context.Context, input message.Value) (message.Value, error) {
	var sb strings.Builder
	err := m.Stream(ctx, input, func(frag message.Value) error {
		content, _ := frag.Get("content")
		text, _ := content.AsString()
		sb.WriteString(text)
		return nil
	})
	if err != nil {
		return message.Value{}, err
	}
	return message.Object(message.F("content", message.String(sb.String()))), nil
}

func (m leadModel) Stream(ctx context.Context, input message.Value, emit func(message.Value) error) error {
	prompt, _ := input.AsString()
	// the instruction is the first line
	if i := strings.IndexByte(prompt, '\n'); i >= 0 {
		prompt = prompt[i+1:]
	}
	lead := leadSentences(strings.TrimSpace(prompt), m.sentences)
	for _, word := range strings.SplitAfter(lead, " ") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(message.Object(message.F("content", message.String(word)))); err != nil {
			return err
		}
	}
	return nil
}

func leadSentences(text string, n int) string {
	end := 0
	for i := 0; i < n; i++ {
		j := strings.IndexAny(text[end:], ".!?")
		if j < 0 {
			return text
		}
		end += j + 1
	}
	return text[:end]
}
