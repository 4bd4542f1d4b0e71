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

package sshare

import (
	cryptoRand "crypto/rand"
	"math/big"
	"testing"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/stretchr/testify/require"

	"github.com/fedlearn/sshelr/crypto/fixedpoint"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

const testPrecision = 23

func testCodec(t *testing.T) *fixedpoint.Codec {
	q, err := cryptoRand.Prime(cryptoRand.Reader, 202)
	require.NoError(t, err)
	codec, err := fixedpoint.NewCodec(q, testPrecision)
	require.NoError(t, err)
	return codec
}

// reconstruct sums two shares locally, test helper only
func reconstruct(codec *fixedpoint.Codec, a, b *Tensor) []float64 {
	q := codec.Field()
	out := make([]float64, len(a.Vals))
	for i := range a.Vals {
		s := new(big.Int).Add(a.Vals[i], b.Vals[i])
		s.Mod(s, q)
		out[i] = codec.DecodeAt(s, a.Shift)
	}
	return out
}

func TestShareSplitAndReconstruct(t *testing.T) {
	codec := testCodec(t)
	guest, host := transfer.Pair()
	defer guest.Close()

	vals := []float64{1.5, -2.25, 0, 100.125}
	tag := transfer.NewTag("w", -1, 0)

	done := make(chan *Tensor, 1)
	go func() {
		peer, err := FromPeer(tag, codec, host)
		require.NoError(t, err)
		done <- peer
	}()
	local, err := FromPlaintext(tag, vals, codec, guest)
	require.NoError(t, err)
	peer := <-done

	got := reconstruct(codec, local, peer)
	for i, v := range vals {
		require.InDelta(t, v, got[i], 1e-6)
	}
}

func TestShareArithmetic(t *testing.T) {
	codec := testCodec(t)
	q := codec.Field()

	split := func(vals []float64) (*Tensor, *Tensor) {
		a := make([]*big.Int, len(vals))
		b := make([]*big.Int, len(vals))
		for i, v := range vals {
			r, err := RandFieldElement(q)
			require.NoError(t, err)
			a[i] = r
			e := codec.Encode(v)
			b[i] = e.Sub(e, r).Mod(e, q)
		}
		shift := uint(codec.Precision())
		return NewTensor("a", a, shift, codec), NewTensor("a", b, shift, codec)
	}

	x1, x2 := split([]float64{1, -2, 3})
	y1, y2 := split([]float64{0.5, 0.5, -4})

	sum1, err := x1.Add(y1)
	require.NoError(t, err)
	sum2, err := x2.Add(y2)
	require.NoError(t, err)
	got := reconstruct(codec, sum1, sum2)
	require.InDeltaSlice(t, []float64{1.5, -1.5, -1}, got, 1e-6)

	diff1, err := x1.Sub(y1)
	require.NoError(t, err)
	diff2, err := x2.Sub(y2)
	require.NoError(t, err)
	got = reconstruct(codec, diff1, diff2)
	require.InDeltaSlice(t, []float64{0.5, -2.5, 7}, got, 1e-6)

	k := codec.Encode(0.25)
	s1 := x1.ScalePlain(k, uint(codec.Precision()))
	s2 := x2.ScalePlain(k, uint(codec.Precision()))
	got = reconstruct(codec, s1, s2)
	require.InDeltaSlice(t, []float64{0.25, -0.5, 0.75}, got, 1e-6)
}

func TestTruncate(t *testing.T) {
	codec := testCodec(t)
	q := codec.Field()
	f := uint(codec.Precision())

	vals := []float64{3.5, -7.125, 0.0009765625, -123.75}
	a := make([]*big.Int, len(vals))
	b := make([]*big.Int, len(vals))
	for i, v := range vals {
		r, err := RandFieldElement(q)
		require.NoError(t, err)
		a[i] = r
		// the hidden value sits at 2f, as after one share product
		e := codec.EncodeAt(v, 2*f)
		b[i] = e.Sub(e, r).Mod(e, q)
	}
	x1 := NewTensor("z", a, 2*f, codec)
	x2 := NewTensor("z", b, 2*f, codec)

	t1 := x1.Truncate(f, true)
	t2 := x2.Truncate(f, false)
	require.Equal(t, f, t1.Shift)

	got := reconstruct(codec, t1, t2)
	ulp := 1.0 / float64(uint64(1)<<f)
	for i, v := range vals {
		require.InDelta(t, v, got[i], 2*ulp)
	}
}

func TestReconstructPair(t *testing.T) {
	codec := testCodec(t)
	q := codec.Field()
	guest, host := transfer.Pair()
	defer guest.Close()

	vals := []float64{2.5, -1.25}
	a := make([]*big.Int, len(vals))
	b := make([]*big.Int, len(vals))
	for i, v := range vals {
		r, err := RandFieldElement(q)
		require.NoError(t, err)
		a[i] = r
		e := codec.Encode(v)
		b[i] = e.Sub(e, r).Mod(e, q)
	}
	shift := uint(codec.Precision())
	mine := NewTensor("w", a, shift, codec)
	theirs := NewTensor("w", b, shift, codec)

	tag := transfer.NewTag("w", 3, 0)
	go func() {
		require.NoError(t, theirs.BroadcastReconstructShare(tag, host))
	}()
	got, err := mine.ReconstructUnilateral(tag, guest)
	require.NoError(t, err)
	require.InDeltaSlice(t, vals, got, 1e-6)
}

// Exercises the full blinded cross multiplication round: the share owner
// encrypts under its own key, the matrix owner combines and blinds, the
// share owner decrypts. The two resulting shares must sum to A·s.
func TestBlindedCrossMultiply(t *testing.T) {
	codec := testCodec(t)
	q := codec.Field()
	f := uint(codec.Precision())

	priv, err := paillier.GeneratePrivateKey(paillier.DefaultPrimeLength)
	require.NoError(t, err)
	pub := &priv.PublicKey

	// share owner's secret vector s, already a share so uniform in [0,q)
	s := make([]*big.Int, 3)
	for i := range s {
		s[i], err = RandFieldElement(q)
		require.NoError(t, err)
	}
	sT := NewTensor("s", s, f, codec)

	// matrix owner's plaintext features at fraction width f
	rows := [][]float64{{1, 2, -1}, {0.5, -0.25, 4}}
	a := make([][]*big.Int, len(rows))
	for i, row := range rows {
		a[i] = make([]*big.Int, len(row))
		for j, v := range row {
			a[i][j] = codec.Encode(v)
		}
	}

	enc, err := EncryptShare(pub, sT)
	require.NoError(t, err)

	blinds, err := RandBlinds(len(a), q.BitLen())
	require.NoError(t, err)
	resp, err := enc.LinearCombine(a, blinds, f)
	require.NoError(t, err)

	ownerShare, err := DecryptToShare("as", priv, resp, codec)
	require.NoError(t, err)
	evalShare := NegBlindShare("as", blinds, resp.Shift, codec)

	want := MatVecMod(a, s, q)
	for i := range want {
		sum := new(big.Int).Add(ownerShare.Vals[i], evalShare.Vals[i])
		sum.Mod(sum, q)
		require.Zero(t, sum.Cmp(want[i]))
	}
}
