// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fixedpoint maps real values to elements of a prime field at a
// configurable number of fractional bits, so that secret shares of encoded
// values can be combined with exact modular arithmetic.
package fixedpoint

import (
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/errcodes"
)

// Codec encodes real values into Z_q with a fixed fraction width.
// Negative values are represented centered, v < 0 maps to q - |v·2^bits|.
type Codec struct {
	q         *big.Int
	halfQ     *big.Int
	precision int
}

// NewCodec builds a codec over field q with the given fraction width in bits.
// precision must lie in [0, 63].
func NewCodec(q *big.Int, precision int) (*Codec, error) {
	if q == nil || q.Sign() <= 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "field modulus must be a positive integer")
	}
	if precision < 0 || precision > 63 {
		return nil, errorx.New(errcodes.ErrCodeConfig, "floating point precision should be between 0 and 63, got %d", precision)
	}
	return &Codec{
		q:         new(big.Int).Set(q),
		halfQ:     new(big.Int).Rsh(q, 1),
		precision: precision,
	}, nil
}

// Field returns the field modulus
func (c *Codec) Field() *big.Int {
	return c.q
}

// Precision returns the fraction width in bits
func (c *Codec) Precision() int {
	return c.precision
}

// Encode maps v to a field element at the codec's fraction width
func (c *Codec) Encode(v float64) *big.Int {
	return c.EncodeAt(v, uint(c.precision))
}

// EncodeAt maps v to a field element with `bits` fractional bits.
// Intermediate protocol values accumulate fraction width with every
// fixed-point multiplication, so the width is explicit here.
func (c *Codec) EncodeAt(v float64, bits uint) *big.Int {
	scale := new(big.Float).SetPrec(uint(bits) + 128).SetInt(new(big.Int).Lsh(big.NewInt(1), bits))
	f := new(big.Float).SetPrec(uint(bits) + 128).SetFloat64(v)
	f.Mul(f, scale)

	// round half away from zero
	half := big.NewFloat(0.5)
	if f.Sign() >= 0 {
		f.Add(f, half)
	} else {
		f.Sub(f, half)
	}
	n, _ := f.Int(nil)
	return n.Mod(n, c.q)
}

// Decode maps a field element back to a real value at the codec's width
func (c *Codec) Decode(x *big.Int) float64 {
	return c.DecodeAt(x, uint(c.precision))
}

// DecodeAt maps a field element with `bits` fractional bits back to a real
func (c *Codec) DecodeAt(x *big.Int, bits uint) float64 {
	s := c.Signed(x)
	f := new(big.Float).SetPrec(uint(bits) + 128).SetInt(s)
	scale := new(big.Float).SetPrec(uint(bits) + 128).SetInt(new(big.Int).Lsh(big.NewInt(1), bits))
	f.Quo(f, scale)
	v, _ := f.Float64()
	return v
}

// Signed returns the centered representative of x, in (-q/2, q/2]
func (c *Codec) Signed(x *big.Int) *big.Int {
	s := new(big.Int).Mod(x, c.q)
	if s.Cmp(c.halfQ) > 0 {
		s.Sub(s, c.q)
	}
	return s
}
