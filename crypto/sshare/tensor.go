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

// Package sshare implements additive secret shares of fixed-point encoded
// vectors over a prime field. A value V is held as two shares, one per
// party, with local + peer ≡ V (mod q). Shares are combined with exact
// modular arithmetic and only ever leave the process through the
// reconstruction pair or wrapped in homomorphic ciphertext.
package sshare

import (
	cryptoRand "crypto/rand"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/crypto/fixedpoint"
	"github.com/fedlearn/sshelr/errcodes"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

// Tensor is one additive share of a fixed-point encoded vector.
// Shift tracks how many fractional bits the hidden value currently carries,
// it grows with every fixed-point multiplication and shrinks on Truncate.
type Tensor struct {
	Name  string
	Vals  []*big.Int
	Shift uint

	codec *fixedpoint.Codec
}

type shareMsg struct {
	Vals  []string
	Shift uint
}

// NewTensor wraps raw share values
func NewTensor(name string, vals []*big.Int, shift uint, codec *fixedpoint.Codec) *Tensor {
	return &Tensor{Name: name, Vals: vals, Shift: shift, codec: codec}
}

// Zeros returns an all-zero share of the given dimension
func Zeros(name string, dim int, shift uint, codec *fixedpoint.Codec) *Tensor {
	vals := make([]*big.Int, dim)
	for i := range vals {
		vals[i] = big.NewInt(0)
	}
	return NewTensor(name, vals, shift, codec)
}

// RandFieldElement draws a uniform element of [0, q)
func RandFieldElement(q *big.Int) (*big.Int, error) {
	r, err := cryptoRand.Int(cryptoRand.Reader, q)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to draw random field element")
	}
	return r, nil
}

// FromPlaintext splits a local plaintext vector into two shares: a uniform
// random local share, and the difference which is sent to the peer under
// tag. The plaintext never crosses the process boundary.
func FromPlaintext(tag transfer.Tag, vals []float64, codec *fixedpoint.Codec, ch transfer.Channel) (*Tensor, error) {
	q := codec.Field()
	local := make([]*big.Int, len(vals))
	remote := make([]string, len(vals))
	for i, v := range vals {
		r, err := RandFieldElement(q)
		if err != nil {
			return nil, err
		}
		local[i] = r
		d := codec.Encode(v)
		d.Sub(d, r).Mod(d, q)
		remote[i] = d.Text(16)
	}
	shift := uint(codec.Precision())
	if err := transfer.SendJSON(ch, tag, &shareMsg{Vals: remote, Shift: shift}); err != nil {
		return nil, err
	}
	return NewTensor(tag.Name, local, shift, codec), nil
}

// FromPeer receives the share the counterpart produced for tag
func FromPeer(tag transfer.Tag, codec *fixedpoint.Codec, ch transfer.Channel) (*Tensor, error) {
	var msg shareMsg
	if err := transfer.RecvJSON(ch, tag, &msg); err != nil {
		return nil, err
	}
	vals, err := decodeHexVals(msg.Vals)
	if err != nil {
		return nil, err
	}
	return NewTensor(tag.Name, vals, msg.Shift, codec), nil
}

func decodeHexVals(in []string) ([]*big.Int, error) {
	vals := make([]*big.Int, len(in))
	for i, s := range in {
		v, ok := new(big.Int).SetString(s, 16)
		if !ok {
			return nil, errorx.New(errcodes.ErrCodeEncoding, "malformed share value %q", s)
		}
		vals[i] = v
	}
	return vals, nil
}

func hexVals(in []*big.Int) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = v.Text(16)
	}
	return out
}

// Dim returns the share dimension
func (t *Tensor) Dim() int {
	return len(t.Vals)
}

// Clone copies the share
func (t *Tensor) Clone() *Tensor {
	vals := make([]*big.Int, len(t.Vals))
	for i, v := range t.Vals {
		vals[i] = new(big.Int).Set(v)
	}
	return NewTensor(t.Name, vals, t.Shift, t.codec)
}

// Add returns t + o element-wise, shares of the sum of the hidden values
func (t *Tensor) Add(o *Tensor) (*Tensor, error) {
	if err := t.compatible(o); err != nil {
		return nil, err
	}
	q := t.codec.Field()
	out := t.Clone()
	for i, v := range o.Vals {
		out.Vals[i].Add(out.Vals[i], v).Mod(out.Vals[i], q)
	}
	return out, nil
}

// Sub returns t - o element-wise
func (t *Tensor) Sub(o *Tensor) (*Tensor, error) {
	if err := t.compatible(o); err != nil {
		return nil, err
	}
	q := t.codec.Field()
	out := t.Clone()
	for i, v := range o.Vals {
		out.Vals[i].Sub(out.Vals[i], v).Mod(out.Vals[i], q)
	}
	return out, nil
}

func (t *Tensor) compatible(o *Tensor) error {
	if len(t.Vals) != len(o.Vals) {
		return errorx.New(errcodes.ErrCodeParam, "share dimensions differ, %d vs %d", len(t.Vals), len(o.Vals))
	}
	if t.Shift != o.Shift {
		return errorx.New(errcodes.ErrCodeParam, "share fraction widths differ, %d vs %d", t.Shift, o.Shift)
	}
	return nil
}

// ScalePlain multiplies the share by a public field element carrying
// addShift fractional bits
func (t *Tensor) ScalePlain(k *big.Int, addShift uint) *Tensor {
	q := t.codec.Field()
	out := t.Clone()
	for i := range out.Vals {
		out.Vals[i].Mul(out.Vals[i], k).Mod(out.Vals[i], q)
	}
	out.Shift += addShift
	return out
}

// AddPlainVec adds a public vector to the share. Exactly one party may do
// this for a given public value, the hidden value shifts by it.
func (t *Tensor) AddPlainVec(vals []*big.Int) (*Tensor, error) {
	if len(vals) != len(t.Vals) {
		return nil, errorx.New(errcodes.ErrCodeParam, "plain vector dimension %d differs from share dimension %d", len(vals), len(t.Vals))
	}
	q := t.codec.Field()
	out := t.Clone()
	for i, v := range vals {
		out.Vals[i].Add(out.Vals[i], v).Mod(out.Vals[i], q)
	}
	return out, nil
}

// SubPlainVec subtracts a public vector from the share
func (t *Tensor) SubPlainVec(vals []*big.Int) (*Tensor, error) {
	if len(vals) != len(t.Vals) {
		return nil, errorx.New(errcodes.ErrCodeParam, "plain vector dimension %d differs from share dimension %d", len(vals), len(t.Vals))
	}
	q := t.codec.Field()
	out := t.Clone()
	for i, v := range vals {
		out.Vals[i].Sub(out.Vals[i], v).Mod(out.Vals[i], q)
	}
	return out, nil
}

// AddPlainConst adds a public constant to every element on one side
func (t *Tensor) AddPlainConst(c *big.Int) *Tensor {
	q := t.codec.Field()
	out := t.Clone()
	for i := range out.Vals {
		out.Vals[i].Add(out.Vals[i], c).Mod(out.Vals[i], q)
	}
	return out
}

// Truncate locally rescales the share by 2^bits. The parties use the paired
// formulas of two-party local truncation: the leader truncates its raw
// share, the follower truncates the complement. The reconstructed value is
// right within one unit of the target scale, except with probability
// bounded by |value|/q.
func (t *Tensor) Truncate(bits uint, leader bool) *Tensor {
	q := t.codec.Field()
	out := t.Clone()
	for i := range out.Vals {
		if leader {
			out.Vals[i].Rsh(out.Vals[i], bits)
		} else {
			c := new(big.Int).Sub(q, out.Vals[i])
			c.Rsh(c, bits)
			out.Vals[i].Sub(q, c).Mod(out.Vals[i], q)
		}
	}
	out.Shift -= bits
	return out
}

// BroadcastReconstructShare transmits the local share to the counterpart so
// that the counterpart can reconstruct. Nothing is returned locally.
func (t *Tensor) BroadcastReconstructShare(tag transfer.Tag, ch transfer.Channel) error {
	return transfer.SendJSON(ch, tag, &shareMsg{Vals: hexVals(t.Vals), Shift: t.Shift})
}

// ReconstructUnilateral receives the counterpart's share for tag and sums
// it with the local share into plaintext. Requires the matching
// BroadcastReconstructShare on the other side.
func (t *Tensor) ReconstructUnilateral(tag transfer.Tag, ch transfer.Channel) ([]float64, error) {
	var msg shareMsg
	if err := transfer.RecvJSON(ch, tag, &msg); err != nil {
		return nil, err
	}
	if len(msg.Vals) != len(t.Vals) {
		return nil, errorx.New(errcodes.ErrCodeProtocolViolation,
			"peer share for %s has dimension %d, local share has %d", tag, len(msg.Vals), len(t.Vals))
	}
	if msg.Shift != t.Shift {
		return nil, errorx.New(errcodes.ErrCodeProtocolViolation,
			"peer share for %s has fraction width %d, local share has %d", tag, msg.Shift, t.Shift)
	}
	peer, err := decodeHexVals(msg.Vals)
	if err != nil {
		return nil, err
	}
	q := t.codec.Field()
	out := make([]float64, len(t.Vals))
	for i := range t.Vals {
		sum := new(big.Int).Add(t.Vals[i], peer[i])
		sum.Mod(sum, q)
		out[i] = t.codec.DecodeAt(sum, t.Shift)
	}
	return out, nil
}

// MatVecMod computes A·x over the field, A is n×d, x is length d
func MatVecMod(a [][]*big.Int, x []*big.Int, q *big.Int) []*big.Int {
	out := make([]*big.Int, len(a))
	tmp := new(big.Int)
	for i, row := range a {
		acc := big.NewInt(0)
		for j, v := range row {
			acc.Add(acc, tmp.Mul(v, x[j]))
		}
		out[i] = acc.Mod(acc, q)
	}
	return out
}

// MatTVecMod computes Aᵀ·x over the field, A is n×d, x is length n
func MatTVecMod(a [][]*big.Int, x []*big.Int, q *big.Int) []*big.Int {
	if len(a) == 0 {
		return nil
	}
	d := len(a[0])
	out := make([]*big.Int, d)
	for j := 0; j < d; j++ {
		out[j] = big.NewInt(0)
	}
	tmp := new(big.Int)
	for i, row := range a {
		for j, v := range row {
			out[j].Add(out[j], tmp.Mul(v, x[i]))
		}
	}
	for j := 0; j < d; j++ {
		out[j].Mod(out[j], q)
	}
	return out
}

// DotMod computes cᵀ·x over the field
func DotMod(c, x []*big.Int, q *big.Int) *big.Int {
	acc := big.NewInt(0)
	tmp := new(big.Int)
	for i := range c {
		acc.Add(acc, tmp.Mul(c[i], x[i]))
	}
	return acc.Mod(acc, q)
}
