package market

import (
	"time"
)

// Candle represents OHLCV data for one time bucket. Times are UTC.
type Candle struct {
	Symbol   string    `json:"symbol"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Quote is a point-in-time price observation from a market data source
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"time"`
}

// SyntheticCandle builds a flat candle from a polled quote. Polling sees
// only the last trade price, so open=high=low=close; the open time is
// truncated to the bucket so repeated polls inside one bucket land on the
// same slot.
func SyntheticCandle(q Quote, bucket time.Duration) Candle {
	openTime := q.Time.UTC()
	if bucket > 0 {
		openTime = openTime.Truncate(bucket)
	}
	return Candle{
		Symbol:   q.Symbol,
		OpenTime: openTime,
		Open:     q.Price,
		High:     q.Price,
		Low:      q.Price,
		Close:    q.Price,
		Volume:   q.Volume,
	}
}
