package stability_test

import (
	"context"
	"testing"

	bmocks "code.halcyonprotocol.io/halcyon/core/broker/mocks"
	"code.halcyonprotocol.io/halcyon/core/stability"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tstPool struct {
	*stability.Engine
	ctrl *gomock.Controller
}

func getTestPool(t *testing.T) *tstPool {
	t.Helper()
	ctrl := gomock.NewController(t)
	broker := bmocks.NewMockInterface(ctrl)
	broker.EXPECT().Send(gomock.Any()).AnyTimes()

	return &tstPool{
		Engine: stability.New(logging.NewTestLogger(), stability.NewDefaultConfig(), broker),
		ctrl:   ctrl,
	}
}

func TestStabilityPool(t *testing.T) {
	t.Run("Deposit then withdraw is exact without liquidations", testDepositWithdrawExact)
	t.Run("Offset compounds stakes down and accrues gains", testOffsetCompounds)
	t.Run("Full depletion starts a new epoch", testFullDepletion)
	t.Run("Precision underflow shifts the scale", testScaleShift)
	t.Run("Near-total offset does not start a new epoch", testNearTotalOffset)
	t.Run("Offsets are bounded by the pooled deposits", testOffsetBounds)
}

func testDepositWithdrawExact(t *testing.T) {
	p := getTestPool(t)
	defer p.ctrl.Finish()
	ctx := context.Background()

	gain, err := p.Deposit(ctx, "alice", num.NewUint(1000))
	require.NoError(t, err)
	assert.True(t, gain.IsZero())
	assert.True(t, p.GetStakeAmount("alice").EQ(num.NewUint(1000)))
	assert.True(t, p.GetTotalStakeAmount().EQ(num.NewUint(1000)))

	// withdrawals are capped at the compounded stake
	withdrawn, gain, err := p.Withdraw(ctx, "alice", num.NewUint(5000))
	require.NoError(t, err)
	assert.True(t, withdrawn.EQ(num.NewUint(1000)))
	assert.True(t, gain.IsZero())
	assert.True(t, p.GetTotalStakeAmount().IsZero())
	assert.True(t, p.GetStakeAmount("alice").IsZero())

	_, _, err = p.Withdraw(ctx, "alice", num.NewUint(1))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testOffsetCompounds(t *testing.T) {
	p := getTestPool(t)
	defer p.ctrl.Finish()
	ctx := context.Background()

	_, err := p.Deposit(ctx, "alice", num.NewUint(1000))
	require.NoError(t, err)

	taken, err := p.Liquidation(ctx, num.NewUint(50), num.NewUint(500))
	require.NoError(t, err)
	assert.True(t, taken.EQ(num.NewUint(500)))

	// the aggregate is decremented exactly, the per-depositor stake is
	// floored by the running product
	assert.True(t, p.GetTotalStakeAmount().EQ(num.NewUint(500)))
	assert.True(t, p.GetStakeAmount("alice").EQ(num.NewUint(499)))
	assert.True(t, p.GetCollateralGain("alice").EQ(num.NewUint(50)))
	assert.True(t, p.CollateralHeld().EQ(num.NewUint(50)))

	withdrawn, gain, err := p.Withdraw(ctx, "alice", num.MaxUint())
	require.NoError(t, err)
	assert.True(t, withdrawn.EQ(num.NewUint(499)))
	assert.True(t, gain.EQ(num.NewUint(50)))
	assert.True(t, p.CollateralHeld().IsZero())
}

func testFullDepletion(t *testing.T) {
	p := getTestPool(t)
	defer p.ctrl.Finish()
	ctx := context.Background()

	_, err := p.Deposit(ctx, "alice", num.NewUint(1000))
	require.NoError(t, err)

	taken, err := p.Liquidation(ctx, num.NewUint(100), num.NewUint(1000))
	require.NoError(t, err)
	assert.True(t, taken.EQ(num.NewUint(1000)))

	// the stake from the depleted epoch is gone, the gain is not
	assert.True(t, p.GetTotalStakeAmount().IsZero())
	assert.True(t, p.GetStakeAmount("alice").IsZero())
	assert.True(t, p.GetCollateralGain("alice").EQ(num.NewUint(100)))

	// deposits in the fresh epoch start clean
	gain, err := p.Deposit(ctx, "bob", num.NewUint(500))
	require.NoError(t, err)
	assert.True(t, gain.IsZero())
	assert.True(t, p.GetStakeAmount("bob").EQ(num.NewUint(500)))

	// alice settles her gain when she next touches the pool
	withdrawn, gain, err := p.Withdraw(ctx, "alice", num.NewUint(1))
	require.NoError(t, err)
	assert.True(t, withdrawn.IsZero())
	assert.True(t, gain.EQ(num.NewUint(100)))
}

func testScaleShift(t *testing.T) {
	p := getTestPool(t)
	defer p.ctrl.Finish()
	ctx := context.Background()

	total := num.NewUint(1_000_000_000_000_000_000)
	_, err := p.Deposit(ctx, "alice", total)
	require.NoError(t, err)

	// offset all but 1e8 of the pool in one round, compounding the
	// product below its precision floor and forcing a scale shift
	offset := num.UintZero().Sub(total, num.NewUint(100_000_000))
	_, err = p.Liquidation(ctx, num.UintZero(), offset)
	require.NoError(t, err)

	// the aggregate keeps the exact remainder, the compounded stake is
	// one unit short of it from the offset rounding up
	assert.True(t, p.GetTotalStakeAmount().EQ(num.NewUint(100_000_000)))
	assert.True(t, p.GetStakeAmount("alice").EQ(num.NewUint(99_999_999)))
}

func testNearTotalOffset(t *testing.T) {
	p := getTestPool(t)
	defer p.ctrl.Finish()
	ctx := context.Background()

	// a pool larger than DoubleScale offset down to a single unit: the
	// rounded-up per-stake loss must not hit 100% and reset the epoch
	total := num.MustUintFromString("2000000000000000000")
	_, err := p.Deposit(ctx, "alice", total)
	require.NoError(t, err)

	offset := num.UintZero().Sub(total, num.UintOne())
	taken, err := p.Liquidation(ctx, num.NewUint(100), offset)
	require.NoError(t, err)
	assert.True(t, taken.EQ(offset))

	// the epoch survives: the compounded stake is dust, not zero
	assert.True(t, p.GetTotalStakeAmount().EQ(num.UintOne()))
	assert.True(t, p.GetStakeAmount("alice").EQ(num.NewUint(2)))
	assert.True(t, p.GetCollateralGain("alice").EQ(num.NewUint(100)))

	// the payout is bounded by the aggregate remainder
	withdrawn, gain, err := p.Withdraw(ctx, "alice", num.MaxUint())
	require.NoError(t, err)
	assert.True(t, withdrawn.EQ(num.UintOne()))
	assert.True(t, gain.EQ(num.NewUint(100)))
	assert.True(t, p.GetTotalStakeAmount().IsZero())

	// the pool keeps working for fresh deposits
	_, err = p.Deposit(ctx, "bob", num.NewUint(500))
	require.NoError(t, err)
	assert.True(t, p.GetStakeAmount("bob").EQ(num.NewUint(500)))
}

func testOffsetBounds(t *testing.T) {
	p := getTestPool(t)
	defer p.ctrl.Finish()
	ctx := context.Background()

	// empty pool, zero offset: no-ops, not failures
	taken, err := p.Liquidation(ctx, num.NewUint(10), num.NewUint(10))
	require.NoError(t, err)
	assert.True(t, taken.IsZero())

	_, err = p.Deposit(ctx, "alice", num.NewUint(100))
	require.NoError(t, err)
	taken, err = p.Liquidation(ctx, num.NewUint(10), num.UintZero())
	require.NoError(t, err)
	assert.True(t, taken.IsZero())

	_, err = p.Liquidation(ctx, num.NewUint(10), num.NewUint(101))
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
}
