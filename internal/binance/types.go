package binance

import (
	"fmt"
	"strconv"
)

// SymbolFilter carries the exchange trading constraints for one symbol,
// fetched once at startup and immutable for the process lifetime.
type SymbolFilter struct {
	MinQty      float64
	StepSize    float64
	MinNotional float64
}

type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// APIError is a rejection from the exchange: a non-2xx response or a
// well-formed error payload.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: http %d code %d: %s", e.Status, e.Code, e.Message)
}

func parseFloatField(raw map[string]any, key string) (float64, bool) {
	val, ok := raw[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
