package report

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Source is the subset of the record store the report reads.
type Source interface {
	RowCount(ctx context.Context, table string) (int64, error)
	ColumnSum(ctx context.Context, table, column string) (float64, bool, error)
	ColumnAverage(ctx context.Context, table, column string) (float64, bool, error)
}

// Stats содержит сводку по пользователям и покупкам
type Stats struct {
	Date           string
	Users          int64
	Purchases      int64
	BalanceTotal   float64
	BalanceAverage float64
	// HasBalances is false when no user has a numeric balance.
	HasBalances bool
	Revenue     float64
}

// Collect reads the current totals from the store.
func Collect(ctx context.Context, src Source, at time.Time) (*Stats, error) {
	st := &Stats{Date: at.Format("2006-01-02")}
	var err error

	if st.Users, err = src.RowCount(ctx, "users"); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if st.Purchases, err = src.RowCount(ctx, "purchases"); err != nil {
		return nil, fmt.Errorf("count purchases: %w", err)
	}
	total, ok, err := src.ColumnSum(ctx, "users", "balance")
	if err != nil {
		return nil, fmt.Errorf("sum balances: %w", err)
	}
	if ok {
		st.HasBalances = true
		st.BalanceTotal = total
		if st.BalanceAverage, _, err = src.ColumnAverage(ctx, "users", "balance"); err != nil {
			return nil, fmt.Errorf("average balance: %w", err)
		}
	}
	if st.Revenue, _, err = src.ColumnSum(ctx, "purchases", "price"); err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	return st, nil
}

// Text renders the stats for a chat message.
func (s *Stats) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Статистика на %s:\n\n", s.Date)
	fmt.Fprintf(&b, "- Пользователей: %d\n", s.Users)
	if s.HasBalances {
		fmt.Fprintf(&b, "- Общий баланс: $%s\n", money(s.BalanceTotal))
		fmt.Fprintf(&b, "- Средний баланс: $%s\n", money(s.BalanceAverage))
	} else {
		b.WriteString("- Балансов пока нет\n")
	}
	fmt.Fprintf(&b, "- Покупок: %d на $%s\n", s.Purchases, money(s.Revenue))
	return b.String()
}

func money(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
