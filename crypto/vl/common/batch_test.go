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

package vlcommon

import (
	cryptoRand "crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedlearn/sshelr/crypto/fixedpoint"
)

func testCodec(t *testing.T) *fixedpoint.Codec {
	q, err := cryptoRand.Prime(cryptoRand.Reader, 202)
	require.NoError(t, err)
	codec, err := fixedpoint.NewCodec(q, 23)
	require.NoError(t, err)
	return codec
}

func TestMakeBatches(t *testing.T) {
	codec := testCodec(t)
	features := make([][]float64, 25)
	labels := make([]float64, 25)
	for i := range features {
		features[i] = []float64{float64(i), float64(-i)}
		labels[i] = float64(i % 2)
	}

	batches, err := MakeBatches(features, labels, 10, codec)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	require.Equal(t, 10, batches[0].N)
	require.Equal(t, 5, batches[2].N)
	require.Equal(t, 2, batches[0].Dim())
	require.Len(t, batches[2].Labels, 5)
	require.InDelta(t, 0.2, codec.Decode(batches[2].Recip), 1e-6)

	// whole set in one batch
	batches, err = MakeBatches(features, nil, -1, codec)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, 25, batches[0].N)
	require.Nil(t, batches[0].Labels)
}

func TestMakeBatchesZeroFeatures(t *testing.T) {
	codec := testCodec(t)
	features := make([][]float64, 4)
	for i := range features {
		features[i] = []float64{}
	}
	labels := []float64{0, 1, 1, 0}

	batches, err := MakeBatches(features, labels, -1, codec)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, 0, batches[0].Dim())
	require.Equal(t, 4, batches[0].N)
}

func TestReorderSamplesAligned(t *testing.T) {
	features := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}}
	labels := []float64{0, 1, 2, 3, 4, 5}

	gotF, gotL := ReorderSamples(features, labels, 7)
	require.Len(t, gotF, 6)
	for i := range gotF {
		// feature and label move together
		require.Equal(t, gotF[i][0], gotL[i])
	}

	// same sweep gives the same order, another sweep differs
	againF, _ := ReorderSamples(features, nil, 7)
	require.Equal(t, gotF, againF)
	otherF, _ := ReorderSamples(features, nil, 8)
	require.NotEqual(t, gotF, otherF)
}
