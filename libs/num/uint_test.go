package num_test

import (
	"testing"

	"code.halcyonprotocol.io/halcyon/libs/num"

	"github.com/stretchr/testify/assert"
)

func TestUintBasics(t *testing.T) {
	x := num.NewUint(100)
	y := num.NewUint(42)

	assert.True(t, num.Sum(x, y).EQ(num.NewUint(142)))
	assert.True(t, num.UintZero().Sub(x, y).EQ(num.NewUint(58)))
	assert.True(t, num.Min(x, y).EQ(y))
	assert.True(t, num.Max(x, y).EQ(x))

	d, neg := num.UintZero().Delta(y, x)
	assert.True(t, neg)
	assert.True(t, d.EQ(num.NewUint(58)))

	_, overflow := num.UintZero().SubOverflow(y, x)
	assert.True(t, overflow)

	// clones are detached from the original
	c := x.Clone()
	c.AddSum(num.UintOne())
	assert.True(t, x.EQ(num.NewUint(100)))
}

func TestMulDiv(t *testing.T) {
	// the intermediate product overflows 256 bits without widening
	big := num.MustUintFromString("57896044618658097711785492504343953926634992332820282019728792003956564819968")
	r := num.MulDiv(big, num.NewUint(4), num.NewUint(8))
	assert.True(t, r.EQ(num.MustUintFromString("28948022309329048855892746252171976963317496166410141009864396001978282409984")))

	// floor division
	r = num.MulDiv(num.NewUint(10), num.NewUint(10), num.NewUint(3))
	assert.True(t, r.EQ(num.NewUint(33)))
}

func TestUintFromString(t *testing.T) {
	u, overflow := num.UintFromString("12345", 10)
	assert.False(t, overflow)
	assert.True(t, u.EQ(num.NewUint(12345)))

	_, overflow = num.UintFromString("not-a-number", 10)
	assert.True(t, overflow)

	// one past the 256 bit maximum
	_, overflow = num.UintFromString("115792089237316195423570985008687907853269984665640564039457584007913129639936", 10)
	assert.True(t, overflow)
}
