package model

import "time"

// Currency ISO 4217 currency quoted by the feed
type Currency struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CurrencyGroupID uint           `gorm:"not null;index" json:"currency_group_id"`
	NumCode         int            `gorm:"not null;uniqueIndex" json:"num_code"`
	CharCode        string         `gorm:"type:varchar(3);not null;uniqueIndex" json:"char_code"`
	Name            string         `gorm:"type:varchar(64);not null" json:"name"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	CurrencyRates   []CurrencyRate `gorm:"foreignKey:CurrencyID;constraint:OnDelete:CASCADE" json:"currency_rates,omitempty"`
}

// TableName table name
func (Currency) TableName() string {
	return "currencies"
}

func (c Currency) GetID() uint {
	return c.ID
}

var currencySchema = &Schema{
	Name:  "Currency",
	Table: "currencies",
	Fields: map[string]Field{
		"id":                {Column: "id", Kind: KindInt},
		"currency_group_id": {Column: "currency_group_id", Kind: KindInt},
		"num_code":          {Column: "num_code", Kind: KindInt},
		"char_code":         {Column: "char_code", Kind: KindString},
		"name":              {Column: "name", Kind: KindString},
		"created_at":        {Column: "created_at", Kind: KindTime},
	},
	Relations: map[string]string{
		"currency_rates": "CurrencyRates",
	},
}

func (Currency) EntitySchema() *Schema {
	return currencySchema
}
