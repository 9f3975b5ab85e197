// Package flows defines the conversations the bot offers: registration,
// calorie calculation and purchase, plus the product catalog they rely on.
package flows

import (
	"context"

	"health-bot/internal/conversation"
	"health-bot/internal/records"
)

// Table names.
const (
	TableUsers     = "users"
	TableProducts  = "products"
	TablePurchases = "purchases"
)

// Records is the slice of the record store the flows use.
type Records interface {
	Insert(ctx context.Context, table string, rec records.Record) (int64, error)
	FetchAll(ctx context.Context, table string, columns []string) ([]records.Record, error)
	FetchWhere(ctx context.Context, table string, filter records.Filter, columns ...string) ([]records.Record, error)
	Update(ctx context.Context, table string, changes records.Record, filter records.Filter) (int64, error)
	Delete(ctx context.Context, table string, id int64) error
	Exists(ctx context.Context, table string, filter records.Filter) (bool, error)
	RowCount(ctx context.Context, table string) (int64, error)
}

// All returns every conversation kind wired to st.
func All(st Records) []*conversation.Kind {
	return []*conversation.Kind{
		Registration(st),
		Calories(),
		Purchase(st),
	}
}
