package model

import "time"

// CurrencyGroup a named set of currencies, one per feed source
type CurrencyGroup struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"type:varchar(128);not null" json:"name"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	Currencies []Currency `gorm:"foreignKey:CurrencyGroupID;constraint:OnDelete:CASCADE" json:"currencies,omitempty"`
}

// TableName table name
func (CurrencyGroup) TableName() string {
	return "currency_groups"
}

func (g CurrencyGroup) GetID() uint {
	return g.ID
}

var currencyGroupSchema = &Schema{
	Name:  "CurrencyGroup",
	Table: "currency_groups",
	Fields: map[string]Field{
		"id":         {Column: "id", Kind: KindInt},
		"name":       {Column: "name", Kind: KindString},
		"created_at": {Column: "created_at", Kind: KindTime},
	},
	Relations: map[string]string{
		"currencies": "Currencies",
	},
}

func (CurrencyGroup) EntitySchema() *Schema {
	return currencyGroupSchema
}
