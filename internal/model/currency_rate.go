package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyRate quote of a currency against the rouble.
// ModifiedAt moves on every write.
type CurrencyRate struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	CurrencyID uint            `gorm:"not null;index:idx_currency_rates_currency_modified,priority:1" json:"currency_id"`
	Nominal    int             `gorm:"not null;default:1" json:"nominal"`
	Value      decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"value"`
	VunitRate  decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"vunit_rate"`
	ModifiedAt time.Time       `gorm:"not null;autoUpdateTime;index:idx_currency_rates_currency_modified,priority:2" json:"modified_at"`
}

// TableName table name
func (CurrencyRate) TableName() string {
	return "currency_rates"
}

func (r CurrencyRate) GetID() uint {
	return r.ID
}

var currencyRateSchema = &Schema{
	Name:  "CurrencyRate",
	Table: "currency_rates",
	Fields: map[string]Field{
		"id":          {Column: "id", Kind: KindInt},
		"currency_id": {Column: "currency_id", Kind: KindInt},
		"nominal":     {Column: "nominal", Kind: KindInt},
		"value":       {Column: "value", Kind: KindDecimal},
		"vunit_rate":  {Column: "vunit_rate", Kind: KindDecimal},
		"modified_at": {Column: "modified_at", Kind: KindTime},
	},
	Relations: map[string]string{},
}

func (CurrencyRate) EntitySchema() *Schema {
	return currencyRateSchema
}

// SameDay reports whether the rate was last written on the given calendar day in MSK
func (r *CurrencyRate) SameDay(day time.Time) bool {
	m := r.ModifiedAt.In(MSK)
	d := day.In(MSK)
	return m.Year() == d.Year() && m.YearDay() == d.YearDay()
}
