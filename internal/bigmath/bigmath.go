// Package bigmath provides the logarithm and exponential over big.Float
// that math/big leaves out. Results carry the precision of their argument.
package bigmath

import (
	"math"
	"math/big"
	"sync"
)

// DefaultPrec is the mantissa size used when a caller passes 0.
const DefaultPrec uint = 128

// guard bits carried through intermediate sums
const guard = 32

// squarings after range reduction in Exp
const expHalvings = 8

var ln2Cache sync.Map

// New returns a zero of the given precision.
func New(prec uint) *big.Float {
	if prec == 0 {
		prec = DefaultPrec
	}
	return new(big.Float).SetPrec(prec)
}

// FromFloat converts v exactly.
func FromFloat(v float64, prec uint) *big.Float {
	return New(prec).SetFloat64(v)
}

// Ln2 returns ln 2 to prec bits.
func Ln2(prec uint) *big.Float {
	if prec == 0 {
		prec = DefaultPrec
	}
	if v, ok := ln2Cache.Load(prec); ok {
		return New(prec).Set(v.(*big.Float))
	}
	work := prec + guard
	third := New(work).Quo(FromFloat(1, work), FromFloat(3, work))
	v := atanh(third, work)
	v.Mul(v, FromFloat(2, work))
	out := New(prec).Set(v)
	ln2Cache.Store(prec, out)
	return New(prec).Set(out)
}

// Log returns the natural logarithm of x > 0. Log(0) is -Inf; negative
// arguments panic.
func Log(x *big.Float) *big.Float {
	prec := x.Prec()
	if prec == 0 {
		prec = DefaultPrec
	}
	switch {
	case x.Sign() < 0:
		panic("bigmath: log of negative number")
	case x.Sign() == 0:
		return New(prec).SetInf(true)
	case x.IsInf():
		return New(prec).SetInf(false)
	}

	work := prec + guard
	mant := New(work)
	exp := x.MantExp(mant)
	// bring the mantissa into [1/sqrt2, sqrt2)
	if mant.Cmp(big.NewFloat(math.Sqrt2/2)) < 0 {
		mant.SetMantExp(mant, 1)
		exp--
	}

	one := FromFloat(1, work)
	num := New(work).Sub(mant, one)
	den := New(work).Add(mant, one)
	z := New(work).Quo(num, den)

	out := atanh(z, work)
	out.Mul(out, FromFloat(2, work))
	if exp != 0 {
		term := Ln2(work)
		term.Mul(term, FromFloat(float64(exp), work))
		out.Add(out, term)
	}
	return New(prec).Set(out)
}

// Exp returns e^x.
func Exp(x *big.Float) *big.Float {
	prec := x.Prec()
	if prec == 0 {
		prec = DefaultPrec
	}
	if x.IsInf() {
		if x.Sign() < 0 {
			return New(prec)
		}
		return New(prec).SetInf(false)
	}
	if x.Sign() == 0 {
		return FromFloat(1, prec)
	}

	work := prec + guard
	ln2 := Ln2(work)

	// x = k ln2 + r with |r| <= ln2/2
	ratio, _ := New(work).Quo(x, ln2).Float64()
	k := math.Round(ratio)
	r := New(work).Mul(ln2, FromFloat(k, work))
	r.Sub(x, r)
	r.SetMantExp(r, -expHalvings)

	sum := FromFloat(1, work)
	term := FromFloat(1, work)
	eps := New(work).SetMantExp(FromFloat(1, work), -int(work))
	for i := 1; i < 1000; i++ {
		term.Mul(term, r)
		term.Quo(term, FromFloat(float64(i), work))
		sum.Add(sum, term)
		if new(big.Float).Abs(term).Cmp(eps) < 0 {
			break
		}
	}
	for i := 0; i < expHalvings; i++ {
		sum.Mul(sum, sum)
	}
	sum.SetMantExp(sum, int(k))
	return New(prec).Set(sum)
}

// LogSumExp returns log(sum exp(x_i)) at the precision of xs[0].
func LogSumExp(xs []*big.Float) *big.Float {
	if len(xs) == 0 {
		return New(DefaultPrec).SetInf(true)
	}
	prec := xs[0].Prec()
	mx := xs[0]
	for _, x := range xs[1:] {
		if x.Cmp(mx) > 0 {
			mx = x
		}
	}
	if mx.IsInf() {
		return New(prec).Set(mx)
	}

	work := prec + guard
	sum := New(work)
	diff := New(work)
	for _, x := range xs {
		if x.IsInf() {
			continue
		}
		diff.Sub(x, mx)
		sum.Add(sum, Exp(diff))
	}
	out := Log(sum)
	out.Add(out, mx)
	return New(prec).Set(out)
}

// atanh sums z + z^3/3 + z^5/5 + ... for |z| < 1.
func atanh(z *big.Float, prec uint) *big.Float {
	sum := New(prec).Set(z)
	if z.Sign() == 0 {
		return sum
	}
	z2 := New(prec).Mul(z, z)
	pow := New(prec).Set(z)
	term := New(prec)
	eps := New(prec).SetMantExp(FromFloat(1, prec), -int(prec))
	for k := 3; k < 100000; k += 2 {
		pow.Mul(pow, z2)
		term.Quo(pow, FromFloat(float64(k), prec))
		sum.Add(sum, term)
		if new(big.Float).Abs(term).Cmp(eps) < 0 {
			break
		}
	}
	return sum
}
