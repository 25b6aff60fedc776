package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"langrpc/rpc/message"
)

// PromptTemplate renders a template with {name} placeholders from the
// fields of an object input. {{ and }} are literal braces.
type PromptTemplate struct {
	Template string
}

func NewPromptTemplate(template string) *PromptTemplate {
	return &PromptTemplate{Template: template}
}

func (p *PromptTemplate) Invoke(ctx context.Context, input message.Value) (message.Value, error) {
	if input.Kind() != message.KindObject {
		return message.Value{}, fmt.Errorf("%w: expected an object, got %s", ErrInvalidInput, input.Kind())
	}
	var sb strings.Builder
	err := p.walk(func(literal, name string) error {
		sb.WriteString(literal)
		if name == "" {
			return nil
		}
		v, ok := input.Get(name)
		if !ok {
			return fmt.Errorf("%w: missing variable %q", ErrInvalidInput, name)
		}
		if s, ok := v.AsString(); ok {
			sb.WriteString(s)
		} else {
			sb.WriteString(v.String())
		}
		return nil
	})
	if err != nil {
		return message.Value{}, err
	}
	return message.String(sb.String()), nil
}

// Variables lists the placeholders in order of first use.
func (p *PromptTemplate) Variables() []string {
	var (
		res  []string
		seen = make(map[string]bool)
	)
	_ = p.walk(func(_, name string) error {
		if name != "" && !seen[name] {
			seen[name] = true
			res = append(res, name)
		}
		return nil
	})
	return res
}

func (p *PromptTemplate) InputSchema() *jsonschema.Schema {
	vars := p.Variables()
	props := make(map[string]*jsonschema.Schema, len(vars))
	for _, name := range vars {
		props[name] = &jsonschema.Schema{Title: strings.ToUpper(name[:1]) + name[1:], Type: "string"}
	}
	return &jsonschema.Schema{
		Title:      "PromptInput",
		Type:       "object",
		Properties: props,
		Required:   vars,
	}
}

// walk calls fn with each literal run and the placeholder following it.
func (p *PromptTemplate) walk(fn func(literal, name string) error) error {
	var lit strings.Builder
	tpl := p.Template
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch {
		case c == '{' && i+1 < len(tpl) && tpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tpl[i+1:], '}')
			if end <= 0 {
				lit.WriteByte(c)
				continue
			}
			if err := fn(lit.String(), tpl[i+1:i+1+end]); err != nil {
				return err
			}
			lit.Reset()
			i += end + 1
		default:
			lit.WriteByte(c)
		}
	}
	return fn(lit.String(), "")
}

// StrOutputParser turns a model message into its text. Strings pass
// through, objects yield their "content" field.
type StrOutputParser struct{}

func (StrOutputParser) Invoke(ctx context.Context, input message.Value) (message.Value, error) {
	switch input.Kind() {
	case message.KindString:
		return input, nil
	case message.KindObject:
		content, ok := input.Get("content")
		if !ok {
			return message.String(""), nil
		}
		if _, isStr := content.AsString(); isStr {
			return content, nil
		}
		return message.String(content.String()), nil
	case message.KindNull:
		return message.String(""), nil
	default:
		return message.String(input.String()), nil
	}
}
