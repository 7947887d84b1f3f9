package handler

import (
	"currencyapi/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CurrencyGroupCreate POST /currency_group body
type CurrencyGroupCreate struct {
	Name string `json:"name" binding:"required,max=128"`
}

func (in CurrencyGroupCreate) Entity() *model.CurrencyGroup {
	return &model.CurrencyGroup{Name: in.Name}
}

// CurrencyGroupUpdate PATCH /currency_group body
type CurrencyGroupUpdate struct {
	Name *string `json:"name" binding:"omitempty,max=128"`
}

func (in CurrencyGroupUpdate) Changes() model.Changes {
	changes := model.Changes{}
	set(changes, "name", in.Name)
	return changes
}

// CurrencyCreate POST /currency body
type CurrencyCreate struct {
	CurrencyGroupID uint   `json:"currency_group_id" binding:"required"`
	NumCode         *int   `json:"num_code" binding:"required,gte=0,lte=999"`
	CharCode        string `json:"char_code" binding:"required,charcode"`
	Name            string `json:"name" binding:"required,max=64"`
}

func (in CurrencyCreate) Entity() *model.Currency {
	return &model.Currency{
		CurrencyGroupID: in.CurrencyGroupID,
		NumCode:         *in.NumCode,
		CharCode:        in.CharCode,
		Name:            in.Name,
	}
}

// CurrencyUpdate PATCH /currency body
type CurrencyUpdate struct {
	CurrencyGroupID *uint   `json:"currency_group_id"`
	NumCode         *int    `json:"num_code" binding:"omitempty,gte=0,lte=999"`
	CharCode        *string `json:"char_code" binding:"omitempty,charcode"`
	Name            *string `json:"name" binding:"omitempty,max=64"`
}

func (in CurrencyUpdate) Changes() model.Changes {
	changes := model.Changes{}
	set(changes, "currency_group_id", in.CurrencyGroupID)
	set(changes, "num_code", in.NumCode)
	set(changes, "char_code", in.CharCode)
	set(changes, "name", in.Name)
	return changes
}

// CurrencyRateCreate POST /currency_rate body
type CurrencyRateCreate struct {
	CurrencyID uint             `json:"currency_id" binding:"required"`
	Nominal    *int             `json:"nominal" binding:"required,gte=1"`
	Value      *decimal.Decimal `json:"value" binding:"required"`
	VunitRate  *decimal.Decimal `json:"vunit_rate" binding:"required"`
}

func (in CurrencyRateCreate) Entity() *model.CurrencyRate {
	return &model.CurrencyRate{
		CurrencyID: in.CurrencyID,
		Nominal:    *in.Nominal,
		Value:      *in.Value,
		VunitRate:  *in.VunitRate,
	}
}

// CurrencyRateUpdate PATCH /currency_rate body. Any written change moves modified_at.
type CurrencyRateUpdate struct {
	CurrencyID *uint            `json:"currency_id"`
	Nominal    *int             `json:"nominal" binding:"omitempty,gte=1"`
	Value      *decimal.Decimal `json:"value"`
	VunitRate  *decimal.Decimal `json:"vunit_rate"`
}

func (in CurrencyRateUpdate) Changes() model.Changes {
	changes := model.Changes{}
	set(changes, "currency_id", in.CurrencyID)
	set(changes, "nominal", in.Nominal)
	set(changes, "value", in.Value)
	set(changes, "vunit_rate", in.VunitRate)
	return changes
}

func set[V any](changes model.Changes, key string, v *V) {
	if v != nil {
		changes[key] = *v
	}
}

type (
	CurrencyGroupHandler = EntityHandler[model.CurrencyGroup, CurrencyGroupCreate, CurrencyGroupUpdate]
	CurrencyHandler      = EntityHandler[model.Currency, CurrencyCreate, CurrencyUpdate]
	CurrencyRateHandler  = EntityHandler[model.CurrencyRate, CurrencyRateCreate, CurrencyRateUpdate]
)

// NewCurrencyGroupHandler a nil db uses the default connection
func NewCurrencyGroupHandler(db func() *gorm.DB) *CurrencyGroupHandler {
	return newEntityHandler[model.CurrencyGroup, CurrencyGroupCreate, CurrencyGroupUpdate](db)
}

func NewCurrencyHandler(db func() *gorm.DB) *CurrencyHandler {
	return newEntityHandler[model.Currency, CurrencyCreate, CurrencyUpdate](db)
}

func NewCurrencyRateHandler(db func() *gorm.DB) *CurrencyRateHandler {
	return newEntityHandler[model.CurrencyRate, CurrencyRateCreate, CurrencyRateUpdate](db)
}
