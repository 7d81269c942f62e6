package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kaptinlin/jsonrepair"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

// Parser errors, wrapped in *agent.DecodeError.
var (
	ErrNotObject       = errors.New("reply is not a JSON object")
	ErrMissingThought  = errors.New(`reply lacks the required "thought" field`)
	ErrInvalidField    = errors.New("reply field has the wrong type")
	ErrArgsNotAnObject = errors.New(`"tool_args" must be an object`)
)

// Parser turns model text into a Decision. It has no side effects.
type Parser struct {
	lenient bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLenientJSON makes the parser repair syntactically broken JSON before
// giving up.
func WithLenientJSON(enabled bool) ParserOption {
	return func(p *Parser) {
		p.lenient = enabled
	}
}

// NewParser creates a parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes raw into a Decision. Failures are *agent.DecodeError.
func (p *Parser) Parse(raw string) (agent.Decision, error) {
	body := stripFences(raw)

	fields, err := decodeObject(body)
	if err != nil && p.lenient {
		if repaired, rerr := jsonrepair.JSONRepair(body); rerr == nil {
			fields, err = decodeObject(repaired)
		}
	}
	if err != nil {
		return agent.Decision{}, &agent.DecodeError{Raw: raw, Err: err}
	}

	d := agent.Decision{Raw: raw}

	thought, ok := fields["thought"]
	if !ok || isNull(thought) {
		return agent.Decision{}, &agent.DecodeError{Raw: raw, Err: ErrMissingThought}
	}
	if err := json.Unmarshal(thought, &d.Thought); err != nil {
		return agent.Decision{}, &agent.DecodeError{Raw: raw, Err: fmt.Errorf("%w: thought", ErrInvalidField)}
	}

	if action, ok := fields["tool"]; ok && !isNull(action) {
		if err := json.Unmarshal(action, &d.Action); err != nil {
			return agent.Decision{}, &agent.DecodeError{Raw: raw, Err: fmt.Errorf("%w: tool", ErrInvalidField)}
		}
		d.Action = strings.TrimSpace(d.Action)
	}

	d.Args = json.RawMessage(`{}`)
	if args, ok := fields["tool_args"]; ok && !isNull(args) {
		trimmed := bytes.TrimSpace(args)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return agent.Decision{}, &agent.DecodeError{Raw: raw, Err: ErrArgsNotAnObject}
		}
		d.Args = append(json.RawMessage(nil), trimmed...)
	}

	return d, nil
}

// Decode decodes a JSON object reply into v. Fences are stripped the way
// Parse strips them. Failures are *agent.DecodeError.
func (p *Parser) Decode(raw string, v any) error {
	body := stripFences(raw)

	_, err := decodeObject(body)
	if err != nil && p.lenient {
		if repaired, rerr := jsonrepair.JSONRepair(body); rerr == nil {
			if _, err = decodeObject(repaired); err == nil {
				body = repaired
			}
		}
	}
	if err != nil {
		return &agent.DecodeError{Raw: raw, Err: err}
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), v); err != nil {
		return &agent.DecodeError{Raw: raw, Err: fmt.Errorf("%w: %v", ErrInvalidField, err)}
	}
	return nil
}

// Parse decodes raw with a strict parser.
func Parse(raw string) (agent.Decision, error) {
	return NewParser().Parse(raw)
}

func decodeObject(s string) (map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	return fields, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// stripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	} else {
		s = strings.TrimLeftFunc(s, unicode.IsLetter)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
