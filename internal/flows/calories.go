package flows

import (
	"context"
	"fmt"
	"strconv"

	"health-bot/internal/conversation"
	"health-bot/internal/records"
)

const (
	CalorieErrorText = "Ошибка ввода данных. Пожалуйста, начните заново, введя команду 'Calories'."
	ageAskText       = "Введите свой возраст:"
	heightAskText    = "Введите свой рост:"
	weightAskText    = "Введите свой вес:"
)

// CalculateCalories is the Mifflin-St Jeor basal metabolic rate for men:
// age in years, height in centimetres, weight in kilograms.
func CalculateCalories(age, height, weight int64) float64 {
	return 10*float64(weight) + 6.25*float64(height) - 5*float64(age) + 5
}

// FormatCalories renders the daily norm the way the bot reports it.
func FormatCalories(v float64) string {
	return fmt.Sprintf("Ваша норма калорий: %s калорий в день.", strconv.FormatFloat(v, 'f', -1, 64))
}

// Calories asks for age, height and weight and replies with the daily
// calorie norm. Nothing is stored.
func Calories() *conversation.Kind {
	return &conversation.Kind{
		Name:     "calories",
		Triggers: []string{"Calories", "/calories", "/Calories", "Calculate"},
		Steps: []conversation.Step{
			{Field: "age", Prompt: conversation.Say(ageAskText), Validate: conversation.Integer()},
			{Field: "height", Prompt: conversation.Say(heightAskText), Validate: conversation.Integer()},
			{Field: "weight", Prompt: conversation.Say(weightAskText), Validate: conversation.Integer()},
		},
		AbortText:   CalorieErrorText,
		FailureText: CalorieErrorText,
		Complete: func(_ context.Context, _ int64, rec records.Record) (string, error) {
			age, _ := rec.Int("age")
			height, _ := rec.Int("height")
			weight, _ := rec.Int("weight")
			return FormatCalories(CalculateCalories(age, height, weight)), nil
		},
	}
}
