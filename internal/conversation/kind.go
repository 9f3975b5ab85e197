package conversation

import (
	"context"
	"errors"
	"fmt"

	"health-bot/internal/records"
)

// Policy decides what happens when a step rejects an answer.
type Policy int

const (
	// Abort reports the error and drops the session; the user has to
	// start over with an entry trigger.
	Abort Policy = iota
	// Retry reports the error and stays on the same step.
	Retry
)

func (p Policy) String() string {
	if p == Retry {
		return "retry"
	}
	return "abort"
}

// Prompt is what the user sees when a step becomes current.
type Prompt struct {
	Text    string
	Options []string
	// End closes the conversation after Text is sent, e.g. when there is
	// nothing to choose from.
	End bool
}

// PromptFunc renders a step prompt. It may read the record store, e.g. to
// list the products on offer.
type PromptFunc func(ctx context.Context) (Prompt, error)

// Say is a static prompt.
func Say(text string, options ...string) PromptFunc {
	p := Prompt{Text: text, Options: options}
	return func(context.Context) (Prompt, error) { return p, nil }
}

// Step collects one field.
type Step struct {
	Field     string
	Prompt    PromptFunc
	Validate  Validator
	OnInvalid Policy
	// InvalidText is sent when Validate rejects the answer. Empty falls
	// back to the kind's AbortText, or to the prompt again under Retry.
	InvalidText string
	// InvalidTexts overrides InvalidText for specific rejection kinds.
	InvalidTexts map[ValidationKind]string
}

func (s Step) invalidText(kind ValidationKind) string {
	if msg, ok := s.InvalidTexts[kind]; ok {
		return msg
	}
	return s.InvalidText
}

// CompleteFunc is the terminal action. It receives the assembled record and
// returns the text to show the user.
type CompleteFunc func(ctx context.Context, userID int64, rec records.Record) (string, error)

// Kind is a static conversation definition shared by every user.
type Kind struct {
	Name     string
	Triggers []string
	Steps    []Step
	// Defaults are added to the record for columns no step collected.
	Defaults records.Record
	// AbortText is sent when a step aborts without its own InvalidText.
	AbortText string
	// FailureText is sent when storage fails mid-conversation.
	FailureText string
	Complete    CompleteFunc
}

func (k *Kind) validate() error {
	if k.Name == "" {
		return errors.New("kind without a name")
	}
	if len(k.Steps) == 0 {
		return fmt.Errorf("kind %q has no steps", k.Name)
	}
	if k.Complete == nil {
		return fmt.Errorf("kind %q has no terminal action", k.Name)
	}
	seen := make(map[string]bool, len(k.Steps))
	for i, s := range k.Steps {
		if s.Field == "" || s.Prompt == nil || s.Validate == nil {
			return fmt.Errorf("kind %q: step %d is incomplete", k.Name, i)
		}
		if seen[s.Field] {
			return fmt.Errorf("kind %q: field %q collected twice", k.Name, s.Field)
		}
		seen[s.Field] = true
	}
	return nil
}

// assemble builds the record in step order, then adds defaults.
func (k *Kind) assemble(fields map[string]any) records.Record {
	var rec records.Record
	for _, s := range k.Steps {
		if v, ok := fields[s.Field]; ok {
			rec.Set(s.Field, v)
		}
	}
	for _, col := range k.Defaults.Columns() {
		if !rec.Has(col) {
			v, _ := k.Defaults.Get(col)
			rec.Set(col, v)
		}
	}
	return rec
}
