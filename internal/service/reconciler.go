package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"currencyapi/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrMalformedFeed feed content that cannot be parsed. The run stops at the
// first bad row before any rate is written; groups and currencies resolved
// up to that row stay.
var ErrMalformedFeed = errors.New("malformed feed data")

// ReconcileResult counts of what one run did
type ReconcileResult struct {
	Date      string `json:"date"`
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
}

// Reconciler merges a feed snapshot into the database
type Reconciler struct {
	open      func(ctx context.Context) (*gorm.DB, error)
	publisher RatePublisher
	now       func() time.Time
}

// NewReconciler open is called once per run and the returned pool is closed
// when the run ends, so job connections never outlive a run.
func NewReconciler(open func(ctx context.Context) (*gorm.DB, error), publisher RatePublisher) *Reconciler {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Reconciler{
		open:      open,
		publisher: publisher,
		now:       model.Now,
	}
}

// Apply runs one reconciliation on a fresh job pool
func (r *Reconciler) Apply(ctx context.Context, snapshot *Snapshot) (ReconcileResult, error) {
	db, err := r.open(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("open job database: %w", err)
	}
	defer model.CloseDB(db)

	return r.ApplyWith(ctx, db, snapshot)
}

// ApplyWith runs one reconciliation on db.
//
// A currency whose latest rate was written on the feed's calendar day is
// updated in place when the unit rate moved and left alone otherwise.
// Every other currency gets a new rate row. Rates are written only after the
// whole feed parsed: new rows in one statement, then the in-place updates.
func (r *Reconciler) ApplyWith(ctx context.Context, db *gorm.DB, snapshot *Snapshot) (ReconcileResult, error) {
	result := ReconcileResult{Date: snapshot.ValCurs.Date}

	day, err := snapshot.Day()
	if err != nil {
		return result, err
	}

	groups := model.NewStore[model.CurrencyGroup](db)
	currencies := model.NewStore[model.Currency](db)
	rates := model.NewStore[model.CurrencyRate](db)

	group, _, err := groups.GetOrCreate(ctx, model.Changes{"name": snapshot.ValCurs.Name}, nil)
	if err != nil {
		return result, fmt.Errorf("resolve currency group %q: %w", snapshot.ValCurs.Name, err)
	}

	type pendingUpdate struct {
		currency *model.Currency
		rate     *model.CurrencyRate
		changes  model.Changes
	}

	var (
		inserts []*model.CurrencyRate
		updates []pendingUpdate
		events  []RateEvent
	)

	for _, row := range snapshot.ValCurs.Valute {
		numCode, err := strconv.Atoi(strings.TrimSpace(row.NumCode))
		if err != nil {
			return result, fmt.Errorf("%w: NumCode %q of %s", ErrMalformedFeed, row.NumCode, row.CharCode)
		}

		currency, _, err := currencies.GetOrCreate(ctx,
			model.Changes{"num_code": numCode, "char_code": row.CharCode},
			model.Changes{"currency_group_id": group.ID, "name": row.Name},
		)
		if err != nil {
			return result, fmt.Errorf("resolve currency %s: %w", row.CharCode, err)
		}

		latest, err := latestRate(ctx, rates, currency.ID)
		if err != nil {
			return result, err
		}

		value, err := parseFeedDecimal(row.Value)
		if err != nil {
			return result, fmt.Errorf("%w: Value of %s: %v", ErrMalformedFeed, row.CharCode, err)
		}
		vunitRate, err := parseFeedDecimal(row.VunitRate)
		if err != nil {
			return result, fmt.Errorf("%w: VunitRate of %s: %v", ErrMalformedFeed, row.CharCode, err)
		}
		nominal, err := strconv.Atoi(strings.TrimSpace(row.Nominal))
		if err != nil {
			return result, fmt.Errorf("%w: Nominal %q of %s", ErrMalformedFeed, row.Nominal, row.CharCode)
		}

		if latest != nil && latest.SameDay(day) {
			if latest.VunitRate.Equal(vunitRate) {
				result.Unchanged++
				continue
			}

			updates = append(updates, pendingUpdate{
				currency: currency,
				rate:     latest,
				changes: model.Changes{
					"value":       value,
					"nominal":     nominal,
					"vunit_rate":  vunitRate,
					"modified_at": r.now(),
				},
			})
			continue
		}

		rate := &model.CurrencyRate{
			CurrencyID: currency.ID,
			Nominal:    nominal,
			Value:      value,
			VunitRate:  vunitRate,
			ModifiedAt: r.now(),
		}
		inserts = append(inserts, rate)
		events = append(events, newRateEvent(RateInserted, currency, rate, snapshot.ValCurs.Date))
	}

	if err := rates.CreateMany(ctx, inserts); err != nil {
		return result, fmt.Errorf("insert %d rates: %w", len(inserts), err)
	}
	result.Inserted = len(inserts)

	for _, u := range updates {
		updated, err := rates.Update(ctx, u.rate, u.changes)
		if err != nil {
			return result, fmt.Errorf("update rate of %s: %w", u.currency.CharCode, err)
		}
		result.Updated++
		events = append(events, newRateEvent(RateUpdated, u.currency, updated, snapshot.ValCurs.Date))
	}

	jobMetrics.RatesReconciled.WithLabelValues(string(RateInserted)).Add(float64(result.Inserted))
	jobMetrics.RatesReconciled.WithLabelValues(string(RateUpdated)).Add(float64(result.Updated))
	jobMetrics.RatesReconciled.WithLabelValues("unchanged").Add(float64(result.Unchanged))

	if err := r.publisher.PublishRates(ctx, events); err != nil {
		slog.Warn("publishing rate events failed", "events", len(events), "error", err)
	}

	slog.Info("rates reconciled",
		"date", result.Date,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"unchanged", result.Unchanged)
	return result, nil
}

func latestRate(ctx context.Context, rates *model.Store[model.CurrencyRate], currencyID uint) (*model.CurrencyRate, error) {
	params := model.Params{
		{Key: "_modified_at"},
		{Key: "currency_id", Value: strconv.FormatUint(uint64(currencyID), 10)},
		{Key: "limit", Value: "1"},
	}
	for rate, err := range rates.ReadAll(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("latest rate of currency %d: %w", currencyID, err)
		}
		return rate, nil
	}
	return nil, nil
}

// parseFeedDecimal converts "92,5000" to 92.5
func parseFeedDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(strings.TrimSpace(s), ",", ".", 1))
}
