package flows

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"health-bot/internal/conversation"
	"health-bot/internal/records"
)

// DefaultBalance is credited to every new user.
const DefaultBalance = 1000

const (
	usernamePrompt     = "Enter User Name : "
	usernameTakenText  = "User is exists. Try another username: "
	emailPrompt        = "Enter E-Mail address: "
	agePrompt          = "How old are you? : "
	registrationRetry  = "Invalid input. Please start again with 'Registration'."
	registrationFailed = "Registration failed. Please try again later with 'Registration'."
)

// Registration collects username, e-mail and age and stores a new user.
// A taken username is asked again; any other bad answer ends the dialog.
func Registration(st Records) *conversation.Kind {
	return &conversation.Kind{
		Name:     "registration",
		Triggers: []string{"Registration", "/registration", "/register"},
		Steps: []conversation.Step{
			{
				Field:     "username",
				Prompt:    conversation.Say(usernamePrompt),
				Validate:  conversation.Unique(st, TableUsers, "username"),
				OnInvalid: conversation.Retry,
				InvalidTexts: map[conversation.ValidationKind]string{
					conversation.Duplicate: usernameTakenText,
				},
			},
			{
				Field:    "email",
				Prompt:   conversation.Say(emailPrompt),
				Validate: conversation.Email(),
			},
			{
				Field:    "age",
				Prompt:   conversation.Say(agePrompt),
				Validate: conversation.Integer(),
			},
		},
		Defaults:    records.NewRecord("balance", DefaultBalance),
		AbortText:   registrationRetry,
		FailureText: registrationFailed,
		Complete: func(ctx context.Context, userID int64, rec records.Record) (string, error) {
			if _, err := st.Insert(ctx, TableUsers, rec); err != nil {
				return "", err
			}
			name, _ := rec.String("username")
			email, _ := rec.String("email")
			log.Info().Int64("user", userID).Str("username", name).Str("email", email).Msg("new user added")
			return fmt.Sprintf("Registration completed! Welcome, %s!", name), nil
		},
	}
}
