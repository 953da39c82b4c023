// Package oracle adapts external price feeds to the fixed decimal
// scale the core's ratio math runs at. Feeds are untrusted input
// bounded only by type range.
package oracle

import (
	"time"

	"code.halcyonprotocol.io/halcyon/libs/num"
)

// Price is one oracle reading as delivered by a feed.
type Price struct {
	Value     *num.Uint
	Decimals  uint32
	Timestamp time.Time
	Round     uint64
}

// PriceSource is the feed the protocol reads from, once per
// liquidation or redemption call.
//
//go:generate go run github.com/golang/mock/mockgen -destination mocks/price_source_mock.go -package mocks code.halcyonprotocol.io/halcyon/core/oracle PriceSource
type PriceSource interface {
	GetPrice(pairID string) (Price, error)
}

// targetDecimals is the protocol's fixed price scale.
const targetDecimals = 9

// Normalize rescales a price reading to the protocol's fixed decimal
// scale, truncating excess precision.
func Normalize(p Price) *num.Uint {
	value := p.Value.Clone()
	if p.Decimals == targetDecimals {
		return value
	}
	if p.Decimals > targetDecimals {
		div := pow10(uint64(p.Decimals - targetDecimals))
		return value.Div(value, div)
	}
	mul := pow10(uint64(targetDecimals - p.Decimals))
	return value.Mul(value, mul)
}

func pow10(exp uint64) *num.Uint {
	r := num.UintOne()
	ten := num.NewUint(10)
	for i := uint64(0); i < exp; i++ {
		r.Mul(r, ten)
	}
	return r
}

// StaticSource is a fixed-price source, mostly useful for tests and
// local runs.
type StaticSource struct {
	prices map[string]Price
	round  uint64
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		prices: map[string]Price{},
	}
}

// SetPrice pins the price for a pair, at the protocol's own scale.
func (s *StaticSource) SetPrice(pairID string, value *num.Uint) {
	s.round++
	s.prices[pairID] = Price{
		Value:     value.Clone(),
		Decimals:  targetDecimals,
		Timestamp: time.Now(),
		Round:     s.round,
	}
}

func (s *StaticSource) GetPrice(pairID string) (Price, error) {
	p, ok := s.prices[pairID]
	if !ok {
		return Price{}, ErrUnknownPair
	}
	return p, nil
}
