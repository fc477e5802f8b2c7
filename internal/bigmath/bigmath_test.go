package bigmath

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogMatchesFloat64(t *testing.T) {
	for _, v := range []float64{1e-300, 1e-8, 0.3, 0.5, 0.70710678, 2, math.E, 10, 12345.678, 1e200} {
		got, _ := Log(FromFloat(v, 128)).Float64()
		assert.InEpsilon(t, math.Log(v), got, 1e-14, "log(%g)", v)
	}
	got, _ := Log(FromFloat(1, 128)).Float64()
	assert.Equal(t, 0.0, got)
}

func TestExpMatchesFloat64(t *testing.T) {
	for _, v := range []float64{-700, -20, -1, -1e-9, 0, 1e-9, 0.5, 1, 3.7, 200} {
		got, _ := Exp(FromFloat(v, 128)).Float64()
		assert.InEpsilon(t, math.Exp(v), got, 1e-14, "exp(%g)", v)
	}
}

func TestExpBeyondFloat64Range(t *testing.T) {
	x := FromFloat(-2000, 192)
	back, _ := Log(Exp(x)).Float64()
	assert.InDelta(t, -2000, back, 1e-25*2000)
}

func TestRoundTripHasExtendedPrecision(t *testing.T) {
	prec := uint(200)
	x := New(prec).Quo(FromFloat(1, prec), FromFloat(3, prec))
	back := Log(Exp(x))
	diff := New(prec).Sub(back, x)
	d, _ := new(big.Float).Abs(diff).Float64()
	assert.Less(t, d, 1e-50)
}

func TestLn2(t *testing.T) {
	got, _ := Ln2(256).Float64()
	assert.Equal(t, math.Ln2, got)
}

func TestLogSumExp(t *testing.T) {
	xs := []*big.Float{FromFloat(0, 128), FromFloat(0, 128)}
	got, _ := LogSumExp(xs).Float64()
	assert.InDelta(t, math.Ln2, got, 1e-15)

	xs = []*big.Float{FromFloat(-1000, 128), FromFloat(-1001, 128), FromFloat(-999.5, 128)}
	want := -999.5 + math.Log(math.Exp(-0.5)+math.Exp(-1.5)+1)
	got, _ = LogSumExp(xs).Float64()
	assert.InDelta(t, want, got, 1e-12)
}
