package stability

import (
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
)

// Distributor is the reward distribution bookkeeper for the stability
// pool. It tracks the running product P every deposit compounds
// against, the per-epoch per-scale cumulative collateral gain sums, and
// the carried rounding errors of the last offset so dust is never lost
// systematically.
//
// P starts at DoubleScale and decays toward zero as debt is offset
// against the pool. When the pool is fully depleted the epoch
// increments and P resets. When P would drop below ScaleFactor
// precision it is multiplied back up by ScaleFactor and the scale
// counter increments, readers compensate with one division per scale
// step between their snapshot and now.
type Distributor struct {
	p     *num.Uint
	epoch uint64
	scale uint64

	// epoch -> scale -> cumulative collateral gain per unit staked,
	// carried at DoubleScale*DoubleScale precision.
	sums map[uint64]map[uint64]*num.Uint

	// carried rounding remainders from the last offset calculation.
	collErr  *num.Uint
	stakeErr *num.Uint
}

func NewDistributor() *Distributor {
	return &Distributor{
		p:        types.DoubleScale.Clone(),
		sums:     map[uint64]map[uint64]*num.Uint{0: {}},
		collErr:  num.UintZero(),
		stakeErr: num.UintZero(),
	}
}

// P returns the current running product.
func (d *Distributor) P() *num.Uint {
	return d.p.Clone()
}

// Epoch returns the current epoch, incremented on every full depletion
// of the pool.
func (d *Distributor) Epoch() uint64 {
	return d.epoch
}

// Scale returns the current scale within the epoch.
func (d *Distributor) Scale() uint64 {
	return d.scale
}

// SumAt returns the cumulative collateral gain sum for the given epoch
// and scale, zero for buckets never written.
func (d *Distributor) SumAt(epoch, scale uint64) *num.Uint {
	byScale, ok := d.sums[epoch]
	if !ok {
		return num.UintZero()
	}
	s, ok := byScale[scale]
	if !ok {
		return num.UintZero()
	}
	return s.Clone()
}

// RegisterLiquidation folds one liquidation offset into the running
// product and sums. collateral is the amount flowing into the pool,
// debtOffset the pooled stable tokens consumed, totalStake the pool's
// deposits before the offset. The caller guarantees
// 0 < debtOffset <= totalStake and totalStake > 0.
func (d *Distributor) RegisterLiquidation(collateral, debtOffset, totalStake *num.Uint) {
	collGainPerStake, stakeOffsetPerStake := d.perStakeAmounts(collateral, debtOffset, totalStake)

	// S only ever grows by the marginal gain at the current running
	// product, so a depositor's share is pinned to the P they joined at.
	marginalGain := num.UintZero().Mul(collGainPerStake, d.p)
	current := d.SumAt(d.epoch, d.scale)
	d.sums[d.epoch][d.scale] = current.AddSum(marginalGain)

	productFactor := num.UintZero().Sub(types.DoubleScale, stakeOffsetPerStake)
	switch {
	case productFactor.IsZero():
		// pool fully depleted, start a fresh epoch
		d.epoch++
		d.scale = 0
		d.p = types.DoubleScale.Clone()
		d.sums[d.epoch] = map[uint64]*num.Uint{}
	case num.MulDiv(d.p, productFactor, types.DoubleScale).LT(types.ScaleFactor):
		// P would underflow its precision, shift it up one scale
		d.p = num.MulDiv(num.UintZero().Mul(d.p, productFactor), types.ScaleFactor, types.DoubleScale)
		d.scale++
	default:
		d.p = num.MulDiv(d.p, productFactor, types.DoubleScale)
	}
}

// perStakeAmounts computes the error-compensated per-unit-staked
// collateral gain and stake offset for one liquidation.
func (d *Distributor) perStakeAmounts(collateral, debtOffset, totalStake *num.Uint) (*num.Uint, *num.Uint) {
	collNumerator := num.Sum(num.UintZero().Mul(collateral, types.DoubleScale), d.collErr)
	collGainPerStake := num.UintZero().Div(collNumerator, totalStake)
	d.collErr = num.UintZero().Sub(collNumerator, num.UintZero().Mul(collGainPerStake, totalStake))

	var stakeOffsetPerStake *num.Uint
	if debtOffset.EQ(totalStake) {
		stakeOffsetPerStake = types.DoubleScale.Clone()
		d.stakeErr = num.UintZero()
	} else {
		stakeNumerator := num.UintZero().Sub(num.UintZero().Mul(debtOffset, types.DoubleScale), d.stakeErr)
		// round the loss up so the pool never under-deducts, the
		// remainder is carried into the next offset
		stakeOffsetPerStake = num.UintZero().Div(stakeNumerator, totalStake)
		stakeOffsetPerStake.AddSum(num.UintOne())
		if stakeOffsetPerStake.GTE(types.DoubleScale) {
			// a near-total offset must not zero the running product, only
			// debtOffset == totalStake starts a new epoch
			stakeOffsetPerStake = num.UintZero().Sub(types.DoubleScale, num.UintOne())
			d.stakeErr = num.UintZero()
		} else {
			d.stakeErr = num.UintZero().Sub(num.UintZero().Mul(stakeOffsetPerStake, totalStake), stakeNumerator)
		}
	}
	return collGainPerStake, stakeOffsetPerStake
}
