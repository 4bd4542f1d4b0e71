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

package fixedpoint

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testField(t *testing.T) *big.Int {
	// the codec needs an odd modulus with enough headroom, primality is the
	// session's concern
	q, ok := new(big.Int).SetString("ffffffffffffffffffffffffffffffffffffffffffffffdc7", 16)
	require.True(t, ok)
	return q
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec, err := NewCodec(testField(t), 23)
	require.NoError(t, err)

	for _, v := range []float64{0, 1, -1, 0.5, -0.5, 3.1415926, -2.71828, 1e-5, -1e-5, 1024.75} {
		got := codec.Decode(codec.Encode(v))
		require.InDelta(t, v, got, math.Pow(2, -22), "value %v", v)
	}
}

func TestEncodeAtWideFraction(t *testing.T) {
	codec, err := NewCodec(testField(t), 23)
	require.NoError(t, err)

	// six multiplications deep, the fraction width is far beyond float64 range
	x := codec.EncodeAt(-1.25, 138)
	require.InDelta(t, -1.25, codec.DecodeAt(x, 138), 1e-9)
}

func TestSignedRepresentative(t *testing.T) {
	q := testField(t)
	codec, err := NewCodec(q, 10)
	require.NoError(t, err)

	neg := codec.Encode(-3)
	require.Equal(t, 1, neg.Sign(), "negatives live near q")
	require.Equal(t, int64(-3<<10), codec.Signed(neg).Int64())
}

func TestPrecisionBounds(t *testing.T) {
	q := testField(t)
	if _, err := NewCodec(q, -1); err == nil {
		t.Fatal("expected error for negative precision")
	}
	if _, err := NewCodec(q, 64); err == nil {
		t.Fatal("expected error for precision over 63")
	}
	if _, err := NewCodec(q, 0); err != nil {
		t.Fatalf("precision 0 should be accepted: %v", err)
	}
	if _, err := NewCodec(q, 63); err != nil {
		t.Fatalf("precision 63 should be accepted: %v", err)
	}
}
