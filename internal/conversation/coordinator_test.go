package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-bot/internal/records"
	"health-bot/internal/session"
)

type sent struct {
	user    int64
	text    string
	options []string
}

type fakePresenter struct{ sent []sent }

func (f *fakePresenter) SendText(_ context.Context, userID int64, text string) error {
	f.sent = append(f.sent, sent{user: userID, text: text})
	return nil
}

func (f *fakePresenter) SendPrompt(_ context.Context, userID int64, text string, options []string) error {
	f.sent = append(f.sent, sent{user: userID, text: text, options: options})
	return nil
}

func (f *fakePresenter) last() sent {
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeChecker struct {
	taken map[string]bool
	err   error
}

func (f fakeChecker) Exists(_ context.Context, _ string, filter records.Filter) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.taken[filter[0].Value.(string)], nil
}

type completion struct {
	user int64
	rec  records.Record
}

func signupKind(chk Checker, done *[]completion, completeErr error) *Kind {
	return &Kind{
		Name:     "signup",
		Triggers: []string{"Signup", "/signup"},
		Steps: []Step{
			{
				Field:       "username",
				Prompt:      Say("name?"),
				Validate:    Unique(chk, "users", "username"),
				OnInvalid:   Retry,
				InvalidText: "taken, another?",
			},
			{Field: "age", Prompt: Say("age?", "18", "30"), Validate: Integer()},
		},
		Defaults:    records.NewRecord("balance", 1000, "age", 0),
		AbortText:   "bad input, send Signup again",
		FailureText: "storage broke",
		Complete: func(_ context.Context, userID int64, rec records.Record) (string, error) {
			*done = append(*done, completion{user: userID, rec: rec})
			if completeErr != nil {
				return "", completeErr
			}
			name, _ := rec.String("username")
			return "welcome " + name, nil
		},
	}
}

func newCoordinator(t *testing.T, kinds ...*Kind) (*Coordinator, *fakePresenter, *session.Store) {
	t.Helper()
	out := &fakePresenter{}
	sessions := session.NewStore(0)
	c, err := New(sessions, out, kinds...)
	require.NoError(t, err)
	return c, out, sessions
}

func TestCoordinator_HappyPath(t *testing.T) {
	ctx := context.Background()
	var done []completion
	c, out, sessions := newCoordinator(t, signupKind(fakeChecker{}, &done, nil))

	handled, err := c.Handle(ctx, 1, "Signup")
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "name?", out.last().text)

	_, err = c.Handle(ctx, 1, " alice ")
	require.NoError(t, err)
	assert.Equal(t, sent{user: 1, text: "age?", options: []string{"18", "30"}}, out.last())

	_, err = c.Handle(ctx, 1, "30")
	require.NoError(t, err)
	assert.Equal(t, "welcome alice", out.last().text)

	require.Len(t, done, 1)
	assert.Equal(t, []string{"username", "age", "balance"}, done[0].rec.Columns())
	assert.Equal(t, map[string]any{"username": "alice", "age": int64(30), "balance": int64(1000)}, done[0].rec.Map())

	_, active := sessions.Get(1)
	assert.False(t, active)
}

func TestCoordinator_UnknownMessageWithoutSession(t *testing.T) {
	var done []completion
	c, out, _ := newCoordinator(t, signupKind(fakeChecker{}, &done, nil))

	handled, err := c.Handle(context.Background(), 1, "80")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, out.sent)
}

func TestCoordinator_AbortOnInvalid(t *testing.T) {
	ctx := context.Background()
	var done []completion
	c, out, sessions := newCoordinator(t, signupKind(fakeChecker{}, &done, nil))

	_, _ = c.Handle(ctx, 1, "Signup")
	_, _ = c.Handle(ctx, 1, "alice")
	handled, err := c.Handle(ctx, 1, "thirty")
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "bad input, send Signup again", out.last().text)

	_, active := sessions.Get(1)
	assert.False(t, active)

	// Restart: nothing from the aborted attempt survives.
	_, _ = c.Handle(ctx, 1, "/signup")
	sess, ok := sessions.Get(1)
	require.True(t, ok)
	assert.Zero(t, sess.Step)
	assert.Empty(t, sess.Fields)
	assert.Empty(t, done)
}

func TestCoordinator_RetryOnDuplicate(t *testing.T) {
	ctx := context.Background()
	var done []completion
	chk := fakeChecker{taken: map[string]bool{"alice": true}}
	c, out, sessions := newCoordinator(t, signupKind(chk, &done, nil))

	_, _ = c.Handle(ctx, 1, "Signup")
	handled, err := c.Handle(ctx, 1, "alice")
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "taken, another?", out.last().text)

	sess, ok := sessions.Get(1)
	require.True(t, ok, "retry must keep the session")
	assert.Zero(t, sess.Step)
	assert.Empty(t, sess.Fields)

	_, err = c.Handle(ctx, 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, "age?", out.last().text)
	sess, _ = sessions.Get(1)
	assert.Equal(t, 1, sess.Step)
}

func TestCoordinator_RetryWithoutTextRepeatsPrompt(t *testing.T) {
	ctx := context.Background()
	k := &Kind{
		Name:     "pick",
		Triggers: []string{"Pick"},
		Steps: []Step{{
			Field: "color", Prompt: Say("color?", "red", "blue"),
			Validate: OneOf("red", "blue"), OnInvalid: Retry,
		}},
		Complete: func(context.Context, int64, records.Record) (string, error) { return "ok", nil },
	}
	c, out, _ := newCoordinator(t, k)

	_, _ = c.Handle(ctx, 1, "Pick")
	_, _ = c.Handle(ctx, 1, "green")
	assert.Equal(t, sent{user: 1, text: "color?", options: []string{"red", "blue"}}, out.last())
	_, _ = c.Handle(ctx, 1, "red")
	assert.Equal(t, "ok", out.last().text)
}

func TestCoordinator_InvalidTextsPerKind(t *testing.T) {
	ctx := context.Background()
	var done []completion
	k := signupKind(fakeChecker{taken: map[string]bool{"alice": true}}, &done, nil)
	k.Steps[0].InvalidText = ""
	k.Steps[0].InvalidTexts = map[ValidationKind]string{Duplicate: "taken, another?"}
	c, out, sessions := newCoordinator(t, k)

	_, _ = c.Handle(ctx, 1, "Signup")
	_, _ = c.Handle(ctx, 1, "  ")
	assert.Equal(t, "name?", out.last().text)

	_, _ = c.Handle(ctx, 1, "alice")
	assert.Equal(t, "taken, another?", out.last().text)

	sess, ok := sessions.Get(1)
	require.True(t, ok)
	assert.Zero(t, sess.Step)
}

func TestCoordinator_PromptCanEndConversation(t *testing.T) {
	ctx := context.Background()
	k := &Kind{
		Name:     "shop",
		Triggers: []string{"Shop"},
		Steps: []Step{{
			Field: "item",
			Prompt: func(context.Context) (Prompt, error) {
				return Prompt{Text: "nothing for sale", End: true}, nil
			},
			Validate: Text(),
		}},
		AbortText: "unknown item",
		Complete:  func(context.Context, int64, records.Record) (string, error) { return "sold", nil },
	}
	c, out, sessions := newCoordinator(t, k)

	handled, err := c.Handle(ctx, 1, "Shop")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, sent{user: 1, text: "nothing for sale"}, out.last())
	_, active := sessions.Get(1)
	assert.False(t, active)

	handled, err = c.Handle(ctx, 1, "anything")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Len(t, out.sent, 1)
}

func TestCoordinator_StorageErrorInValidatorAborts(t *testing.T) {
	ctx := context.Background()
	var done []completion
	boom := errors.New("disk on fire")
	c, out, sessions := newCoordinator(t, signupKind(fakeChecker{err: boom}, &done, nil))

	_, _ = c.Handle(ctx, 1, "Signup")
	handled, err := c.Handle(ctx, 1, "alice")
	assert.True(t, handled)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "storage broke", out.last().text)
	_, active := sessions.Get(1)
	assert.False(t, active)
}

func TestCoordinator_SessionClearedWhenTerminalActionFails(t *testing.T) {
	ctx := context.Background()
	var done []completion
	boom := errors.New("insert failed")
	c, out, sessions := newCoordinator(t, signupKind(fakeChecker{}, &done, boom))

	_, _ = c.Handle(ctx, 1, "Signup")
	_, _ = c.Handle(ctx, 1, "alice")
	_, err := c.Handle(ctx, 1, "30")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "storage broke", out.last().text)
	require.Len(t, done, 1)
	_, active := sessions.Get(1)
	assert.False(t, active)
}

func TestCoordinator_TriggerReplacesActiveSession(t *testing.T) {
	ctx := context.Background()
	var done []completion
	other := &Kind{
		Name:     "other",
		Triggers: []string{"Other"},
		Steps:    []Step{{Field: "x", Prompt: Say("x?"), Validate: Text()}},
		Complete: func(context.Context, int64, records.Record) (string, error) { return "", nil },
	}
	c, _, sessions := newCoordinator(t, signupKind(fakeChecker{}, &done, nil), other)

	_, _ = c.Handle(ctx, 1, "Signup")
	_, _ = c.Handle(ctx, 1, "alice")
	_, _ = c.Handle(ctx, 1, "Other")

	sess, ok := sessions.Get(1)
	require.True(t, ok)
	assert.Equal(t, "other", sess.Kind)
	assert.Empty(t, sess.Fields)
}

func TestCoordinator_UsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	var done []completion
	c, _, sessions := newCoordinator(t, signupKind(fakeChecker{}, &done, nil))

	_, _ = c.Handle(ctx, 1, "Signup")
	_, _ = c.Handle(ctx, 2, "Signup")
	_, _ = c.Handle(ctx, 1, "alice")

	s1, _ := sessions.Get(1)
	s2, _ := sessions.Get(2)
	assert.Equal(t, 1, s1.Step)
	assert.Zero(t, s2.Step)
}

func TestCoordinator_StartAndCancel(t *testing.T) {
	ctx := context.Background()
	var done []completion
	c, out, _ := newCoordinator(t, signupKind(fakeChecker{}, &done, nil))

	require.Error(t, c.Start(ctx, 1, "nope"))
	require.NoError(t, c.Start(ctx, 1, "signup"))
	assert.Equal(t, "name?", out.last().text)
	assert.True(t, c.Cancel(1))
	assert.False(t, c.Cancel(1))
	assert.True(t, c.IsTrigger(" /signup "))
	assert.False(t, c.IsTrigger("hello"))
}

func TestNew_RejectsBadKinds(t *testing.T) {
	var done []completion
	ok := signupKind(fakeChecker{}, &done, nil)

	_, err := New(session.NewStore(0), &fakePresenter{}, ok, ok)
	assert.Error(t, err)

	clash := &Kind{
		Name:     "clash",
		Triggers: []string{"Signup"},
		Steps:    []Step{{Field: "x", Prompt: Say("x"), Validate: Text()}},
		Complete: func(context.Context, int64, records.Record) (string, error) { return "", nil },
	}
	_, err = New(session.NewStore(0), &fakePresenter{}, ok, clash)
	assert.Error(t, err)

	_, err = New(session.NewStore(0), &fakePresenter{}, &Kind{Name: "empty"})
	assert.Error(t, err)
}
