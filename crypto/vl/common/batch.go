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

// Package vlcommon holds data preparation shared by vertical learners,
// mainly slicing aligned sample sets into mini batches of fixed-point
// encoded feature rows.
package vlcommon

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/crypto/fixedpoint"
	"github.com/fedlearn/sshelr/errcodes"
)

// Batch is one mini batch of local samples, features already fixed-point
// encoded. Labels are only populated on the party that holds them. Recip
// is the encoded reciprocal of the batch size, used to average gradients
// without a share division.
type Batch struct {
	X      [][]*big.Int
	Labels []float64
	Recip  *big.Int
	N      int
}

// Dim returns the local feature count
func (b *Batch) Dim() int {
	if len(b.X) == 0 {
		return 0
	}
	return len(b.X[0])
}

// MakeBatches encodes the aligned local sample set and slices it into
// batches of batchSize samples, the last batch keeps the remainder. A
// batchSize of -1 yields a single batch with the whole set. labels may be
// nil on the party without them, otherwise it must align with features.
func MakeBatches(features [][]float64, labels []float64, batchSize int64, codec *fixedpoint.Codec) ([]*Batch, error) {
	n := len(features)
	if n == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "empty sample set")
	}
	if labels != nil && len(labels) != n {
		return nil, errorx.New(errcodes.ErrCodeParam, "got %d labels for %d samples", len(labels), n)
	}
	if batchSize == -1 || batchSize > int64(n) {
		batchSize = int64(n)
	}
	if batchSize <= 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "invalid batch size %d", batchSize)
	}

	var batches []*Batch
	for start := 0; start < n; start += int(batchSize) {
		end := start + int(batchSize)
		if end > n {
			end = n
		}
		size := end - start
		x := make([][]*big.Int, size)
		for i := 0; i < size; i++ {
			row := features[start+i]
			x[i] = make([]*big.Int, len(row))
			for j, v := range row {
				x[i][j] = codec.Encode(v)
			}
		}
		b := &Batch{X: x, Recip: codec.Encode(1.0 / float64(size)), N: size}
		if labels != nil {
			b.Labels = labels[start:end]
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// ReorderSamples deterministically permutes samples for one sweep. Both
// parties call it with the same sweep number so the aligned order is
// preserved, the permutation keys each index by a digest of the sweep.
func ReorderSamples(features [][]float64, labels []float64, sweep int) ([][]float64, []float64) {
	n := len(features)
	idx := make([]int, n)
	keys := make([][sha256.Size]byte, n)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(sweep))
	for i := 0; i < n; i++ {
		idx[i] = i
		binary.BigEndian.PutUint64(buf[8:], uint64(i))
		keys[i] = sha256.Sum256(buf[:])
	}
	sort.Slice(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		for i := range ka {
			if ka[i] != kb[i] {
				return ka[i] < kb[i]
			}
		}
		return false
	})

	outF := make([][]float64, n)
	var outL []float64
	if labels != nil {
		outL = make([]float64, n)
	}
	for pos, i := range idx {
		outF[pos] = features[i]
		if labels != nil {
			outL[pos] = labels[i]
		}
	}
	return outF, outL
}
