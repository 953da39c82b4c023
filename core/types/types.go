package types

import (
	"code.halcyonprotocol.io/halcyon/libs/num"
)

// All amounts in the protocol are unsigned integers carrying 9 decimal
// places, so 1 full token is 1e9. Ratios derived from them keep that
// scale: an NICR of 1.0 is RatioPrecision.
var (
	// RatioPrecision scales nominal collateral ratios used for index ordering.
	RatioPrecision = num.NewUint(1_000_000_000)
	// PricePrecision is the fixed decimal scale oracle prices are
	// normalised to before they enter ratio math.
	PricePrecision = num.NewUint(1_000_000_000)
	// DoubleScale is the high precision scalar carried by per-stake
	// running sums (stability pool P/S, redistribution accumulators).
	DoubleScale = num.MustUintFromString("1000000000000000000")
	// ScaleFactor shifts the stability pool running product P when it
	// would otherwise underflow DoubleScale precision.
	ScaleFactor = num.NewUint(1_000_000_000)
)

// DefaultMinimumCollateralRatio is the liquidation threshold, positions
// with an individual collateral ratio below 110% are eligible.
func DefaultMinimumCollateralRatio() num.Decimal {
	return num.MustDecimalFromString("1.1")
}

// Position is a single party's collateralized debt position. Stake is
// the position's share weight for redistribution purposes.
type Position struct {
	Collateral *num.Uint
	Debt       *num.Uint
	Stake      *num.Uint
}

func NewPosition() *Position {
	return &Position{
		Collateral: num.UintZero(),
		Debt:       num.UintZero(),
		Stake:      num.UintZero(),
	}
}

func (p *Position) Clone() *Position {
	return &Position{
		Collateral: p.Collateral.Clone(),
		Debt:       p.Debt.Clone(),
		Stake:      p.Stake.Clone(),
	}
}

// Empty returns true when the position carries neither collateral nor
// debt, such a position must be removed rather than retained.
func (p *Position) Empty() bool {
	return p.Collateral.IsZero() && p.Debt.IsZero()
}

// NICR is the nominal collateral ratio, collateral/debt scaled by
// RatioPrecision. Price independent, used only for index ordering.
// A debt-free position sorts above everything else.
func NICR(collateral, debt *num.Uint) *num.Uint {
	if debt.IsZero() {
		return num.MaxUint()
	}
	return num.MulDiv(collateral, RatioPrecision, debt)
}

// ICR is the individual collateral ratio, collateral*price/debt as a
// decimal, used for liquidation and solvency checks. Price is expected
// at PricePrecision scale.
func ICR(collateral, debt, price *num.Uint) num.Decimal {
	if debt.IsZero() {
		return num.DecimalFromUint(num.MaxUint())
	}
	value := num.MulDiv(collateral, price, PricePrecision)
	return num.DecimalFromUint(value).Div(num.DecimalFromUint(debt))
}

// LiquidationTotals aggregates the outcome of one liquidation call
// across every position processed in the walk.
type LiquidationTotals struct {
	TotalCollateral          *num.Uint
	TotalDebt                *num.Uint
	CollateralToOffset       *num.Uint
	DebtToOffset             *num.Uint
	CollateralToRedistribute *num.Uint
	DebtToRedistribute       *num.Uint
	PositionsLiquidated      uint64
}

func NewLiquidationTotals() *LiquidationTotals {
	return &LiquidationTotals{
		TotalCollateral:          num.UintZero(),
		TotalDebt:                num.UintZero(),
		CollateralToOffset:       num.UintZero(),
		DebtToOffset:             num.UintZero(),
		CollateralToRedistribute: num.UintZero(),
		DebtToRedistribute:       num.UintZero(),
	}
}

// RedemptionTotals aggregates the outcome of one redemption call.
type RedemptionTotals struct {
	StableRedeemed   *num.Uint
	CollateralDrawn  *num.Uint
	CollateralSurplus *num.Uint
	PositionsClosed  uint64
}

func NewRedemptionTotals() *RedemptionTotals {
	return &RedemptionTotals{
		StableRedeemed:    num.UintZero(),
		CollateralDrawn:   num.UintZero(),
		CollateralSurplus: num.UintZero(),
	}
}
