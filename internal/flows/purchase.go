package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"health-bot/internal/conversation"
	"health-bot/internal/records"
)

const (
	noProductsText       = "No products available right now."
	chooseProductText    = "Choose a product:"
	unknownProductText   = "Unknown product. Start again with 'Buy'."
	buyerPrompt          = "Enter your username: "
	unknownBuyerText     = "No such user. Enter a registered username: "
	balanceChangedText   = "Your balance changed meanwhile. Please try again with 'Buy'."
	purchaseFailedText   = "Purchase failed. Please try again later with 'Buy'."
	insufficientTemplate = "Not enough money: balance $%d, price $%d."
)

var productColumns = []string{"title", "description", "price", "img_ref"}

// Purchase lets a registered user buy one product from the catalog. The
// price is taken from the user's balance and the order is recorded in the
// purchases table.
func Purchase(st Records) *conversation.Kind {
	return &conversation.Kind{
		Name:     "purchase",
		Triggers: []string{"Buy", "/buy"},
		Steps: []conversation.Step{
			{
				Field:       "product",
				Prompt:      productList(st),
				Validate:    conversation.Present(st, TableProducts, "title"),
				InvalidText: unknownProductText,
			},
			{
				Field:       "username",
				Prompt:      conversation.Say(buyerPrompt),
				Validate:    conversation.Present(st, TableUsers, "username"),
				OnInvalid:   conversation.Retry,
				InvalidText: unknownBuyerText,
			},
		},
		AbortText:   unknownProductText,
		FailureText: purchaseFailedText,
		Complete: func(ctx context.Context, _ int64, rec records.Record) (string, error) {
			return buy(ctx, st, rec)
		},
	}
}

func productList(st Records) conversation.PromptFunc {
	return func(ctx context.Context) (conversation.Prompt, error) {
		rows, err := st.FetchAll(ctx, TableProducts, productColumns)
		if err != nil {
			return conversation.Prompt{}, err
		}
		if len(rows) == 0 {
			return conversation.Prompt{Text: noProductsText, End: true}, nil
		}
		var b strings.Builder
		b.WriteString("Available products:\n")
		titles := make([]string, 0, len(rows))
		for _, r := range rows {
			title, _ := r.String("title")
			desc, _ := r.String("description")
			price, _ := r.Int("price")
			img, _ := r.String("img_ref")
			fmt.Fprintf(&b, "\nTitle: %s\nDescription: %s\nPrice: $%d\nImage: %s\n", title, desc, price, img)
			titles = append(titles, title)
		}
		b.WriteString("\n" + chooseProductText)
		return conversation.Prompt{Text: b.String(), Options: titles}, nil
	}
}

// buy charges the user and records the order. The balance update is
// conditional on the balance read before, so a concurrent change makes the
// update miss; the order row is then removed again.
func buy(ctx context.Context, st Records, rec records.Record) (string, error) {
	title, _ := rec.String("product")
	username, _ := rec.String("username")

	products, err := st.FetchWhere(ctx, TableProducts, records.Where("title", records.Eq, title), "price")
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return unknownProductText, nil
	}
	price, _ := products[0].Int("price")

	users, err := st.FetchWhere(ctx, TableUsers, records.Where("username", records.Eq, username), "balance")
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return strings.TrimSpace(unknownBuyerText), nil
	}
	balance, _ := users[0].Int("balance")
	if balance < price {
		return fmt.Sprintf(insufficientTemplate, balance, price), nil
	}

	ref := uuid.NewString()
	orderID, err := st.Insert(ctx, TablePurchases, records.NewRecord(
		"order_ref", ref,
		"username", username,
		"product", title,
		"price", price,
	))
	if err != nil {
		return "", err
	}

	n, err := st.Update(ctx, TableUsers,
		records.NewRecord("balance", balance-price),
		records.Where("username", records.Eq, username).And("balance", records.Eq, balance))
	if err != nil || n == 0 {
		if derr := st.Delete(ctx, TablePurchases, orderID); derr != nil {
			log.Error().Err(derr).Str("order", ref).Msg("failed to roll back purchase")
		}
		if err != nil {
			return "", err
		}
		return balanceChangedText, nil
	}

	log.Info().Str("username", username).Str("product", title).Int64("price", price).Str("order", ref).Msg("purchase recorded")
	return fmt.Sprintf("Purchased %s for $%d. Order: %s. Balance left: $%d.", title, price, ref, balance-price), nil
}
