// Package conversation drives multi-step data collection.
//
// A Kind lists the steps of one conversation. The Coordinator walks a user
// through them: it validates each answer, stores it in the session, prompts
// for the next field and, after the last step, hands the assembled record
// to the kind's terminal action. A rejected answer either aborts the
// conversation or re-asks the same step, as configured per step.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"health-bot/internal/session"
)

const (
	defaultAbortText   = "Invalid input. Please start again."
	defaultFailureText = "Something went wrong. Please start again."
)

// Presenter delivers text to a user, optionally with a fixed set of choices.
type Presenter interface {
	SendText(ctx context.Context, userID int64, text string) error
	SendPrompt(ctx context.Context, userID int64, text string, options []string) error
}

type Coordinator struct {
	sessions *session.Store
	out      Presenter
	kinds    map[string]*Kind
	triggers map[string]string
	logger   zerolog.Logger
}

// New registers kinds. Kind names and triggers must be unique.
func New(sessions *session.Store, out Presenter, kinds ...*Kind) (*Coordinator, error) {
	c := &Coordinator{
		sessions: sessions,
		out:      out,
		kinds:    make(map[string]*Kind, len(kinds)),
		triggers: make(map[string]string),
		logger:   log.With().Str("component", "conversation").Logger(),
	}
	for _, k := range kinds {
		if err := k.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.kinds[k.Name]; dup {
			return nil, fmt.Errorf("conversation %q registered twice", k.Name)
		}
		c.kinds[k.Name] = k
		for _, t := range k.Triggers {
			if other, dup := c.triggers[t]; dup {
				return nil, fmt.Errorf("trigger %q used by %q and %q", t, other, k.Name)
			}
			c.triggers[t] = k.Name
		}
	}
	return c, nil
}

// IsTrigger reports whether text starts a conversation.
func (c *Coordinator) IsTrigger(text string) bool {
	_, ok := c.triggers[strings.TrimSpace(text)]
	return ok
}

// Start begins conversation name for the user, discarding any session in
// progress, and sends the first prompt.
func (c *Coordinator) Start(ctx context.Context, userID int64, name string) error {
	k, ok := c.kinds[name]
	if !ok {
		return fmt.Errorf("unknown conversation %q", name)
	}
	unlock := c.sessions.Lock(userID)
	defer unlock()
	return c.start(ctx, userID, k)
}

// Cancel drops the user's session. It reports whether one was active.
func (c *Coordinator) Cancel(userID int64) bool {
	unlock := c.sessions.Lock(userID)
	defer unlock()
	_, ok := c.sessions.Get(userID)
	c.sessions.Clear(userID)
	return ok
}

// Handle processes one inbound message. handled is false when the text is
// neither an entry trigger nor an answer to an active conversation. The
// error reports storage or delivery failures; rejected answers are not
// errors.
func (c *Coordinator) Handle(ctx context.Context, userID int64, text string) (handled bool, err error) {
	unlock := c.sessions.Lock(userID)
	defer unlock()

	if name, ok := c.triggers[strings.TrimSpace(text)]; ok {
		return true, c.start(ctx, userID, c.kinds[name])
	}

	sess, ok := c.sessions.Get(userID)
	if !ok {
		return false, nil
	}
	k, ok := c.kinds[sess.Kind]
	if !ok || sess.Step < 0 || sess.Step >= len(k.Steps) {
		c.sessions.Clear(userID)
		return false, nil
	}
	step := k.Steps[sess.Step]

	value, err := step.Validate(ctx, text)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			if verr.Field == "" {
				verr.Field = step.Field
			}
			return true, c.reject(ctx, userID, k, sess.Step, verr)
		}
		return true, c.fail(ctx, userID, k, err)
	}

	c.sessions.PutField(userID, step.Field, value)
	next := sess.Step + 1
	if next < len(k.Steps) {
		c.sessions.SetStep(userID, next)
		return true, c.prompt(ctx, userID, k, next)
	}

	fields := sess.Fields
	fields[step.Field] = value
	return true, c.complete(ctx, userID, k, fields)
}

func (c *Coordinator) start(ctx context.Context, userID int64, k *Kind) error {
	c.sessions.Begin(userID, k.Name)
	c.logger.Debug().Int64("user", userID).Str("kind", k.Name).Msg("conversation started")
	return c.prompt(ctx, userID, k, 0)
}

func (c *Coordinator) prompt(ctx context.Context, userID int64, k *Kind, idx int) error {
	p, err := k.Steps[idx].Prompt(ctx)
	if err != nil {
		return c.fail(ctx, userID, k, fmt.Errorf("render prompt %q: %w", k.Steps[idx].Field, err))
	}
	if p.End {
		c.sessions.Clear(userID)
		c.logger.Debug().Int64("user", userID).Str("kind", k.Name).Msg("conversation closed by prompt")
		return c.out.SendText(ctx, userID, p.Text)
	}
	if len(p.Options) > 0 {
		return c.out.SendPrompt(ctx, userID, p.Text, p.Options)
	}
	return c.out.SendText(ctx, userID, p.Text)
}

func (c *Coordinator) reject(ctx context.Context, userID int64, k *Kind, idx int, verr *ValidationError) error {
	step := k.Steps[idx]
	c.logger.Info().
		Int64("user", userID).
		Str("kind", k.Name).
		Str("field", step.Field).
		Stringer("reason", verr.Kind).
		Stringer("policy", step.OnInvalid).
		Msg("answer rejected")

	msg := step.invalidText(verr.Kind)
	if step.OnInvalid == Retry {
		c.sessions.SetStep(userID, idx)
		if msg == "" {
			return c.prompt(ctx, userID, k, idx)
		}
		return c.out.SendText(ctx, userID, msg)
	}

	c.sessions.Clear(userID)
	if msg == "" {
		msg = orDefault(k.AbortText, defaultAbortText)
	}
	return c.out.SendText(ctx, userID, msg)
}

// fail ends the conversation after a storage error.
func (c *Coordinator) fail(ctx context.Context, userID int64, k *Kind, cause error) error {
	c.sessions.Clear(userID)
	c.logger.Error().Err(cause).Int64("user", userID).Str("kind", k.Name).Msg("conversation aborted")
	if err := c.out.SendText(ctx, userID, orDefault(k.FailureText, defaultFailureText)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// complete runs the terminal action. The session is cleared whatever the
// outcome, so a failed write is not retried from the same session.
func (c *Coordinator) complete(ctx context.Context, userID int64, k *Kind, fields map[string]any) error {
	rec := k.assemble(fields)
	msg, err := k.Complete(ctx, userID, rec)
	c.sessions.Clear(userID)
	if err != nil {
		return c.fail(ctx, userID, k, fmt.Errorf("complete %s: %w", k.Name, err))
	}
	c.logger.Info().Int64("user", userID).Str("kind", k.Name).Msg("conversation completed")
	return c.out.SendText(ctx, userID, msg)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
