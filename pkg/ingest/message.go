package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/alphatrawler/statarb/pkg/models"
)

var (
	ErrNotTrade    = errors.New("message is not a trade")
	ErrBadPrice    = errors.New("price must be positive")
	ErrBadQuantity = errors.New("quantity must not be negative")
)

var validate = validator.New()

// tradeMessage is the inbound bridge payload. Price and quantity arrive as
// numeric strings and are parsed through decimal to avoid float parsing
// surprises on exchange-formatted values.
type tradeMessage struct {
	Type            string `json:"type" validate:"required"`
	Symbol          string `json:"symbol" validate:"required"`
	Price           string `json:"price" validate:"required,numeric"`
	Quantity        string `json:"quantity" validate:"required,numeric"`
	EventTimeMillis int64  `json:"eventTimeMillis" validate:"required,gt=0"`
}

// ParseTradeMessage converts a raw bridge message into a TradeTick. Any
// failure means the message is dropped by the caller; parsing never
// terminates the connection.
func ParseTradeMessage(raw []byte) (models.TradeTick, error) {
	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.TradeTick{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := validate.Struct(&msg); err != nil {
		return models.TradeTick{}, fmt.Errorf("message validation failed: %w", err)
	}

	if msg.Type != "trade" {
		return models.TradeTick{}, ErrNotTrade
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return models.TradeTick{}, fmt.Errorf("invalid price %q: %w", msg.Price, err)
	}
	if !price.IsPositive() {
		return models.TradeTick{}, ErrBadPrice
	}

	quantity, err := decimal.NewFromString(msg.Quantity)
	if err != nil {
		return models.TradeTick{}, fmt.Errorf("invalid quantity %q: %w", msg.Quantity, err)
	}
	if quantity.IsNegative() {
		return models.TradeTick{}, ErrBadQuantity
	}

	return models.TradeTick{
		Symbol:    msg.Symbol,
		Price:     price.InexactFloat64(),
		Quantity:  quantity.InexactFloat64(),
		Timestamp: time.UnixMilli(msg.EventTimeMillis).UTC(),
	}, nil
}
