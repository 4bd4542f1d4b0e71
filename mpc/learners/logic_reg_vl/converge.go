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

package logic_reg_vl

import (
	"math"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/config"
	"github.com/fedlearn/sshelr/errcodes"
)

// Snapshot captures what one epoch leaves visible to the local party, the
// synced loss and the reviewed weight slice
type Snapshot struct {
	Loss    float64
	Weights []float64
}

// CheckConverge decides whether training converged between two consecutive
// snapshots. The loss criteria see identical values on both parties, the
// weight criterion judges only the locally visible slice and the parties
// reconcile their verdicts afterwards. The comparison is inclusive so an
// exactly unchanged model converges under a zero tolerance. Only abs can
// fire on the first epoch, the other criteria need a previous snapshot.
func CheckConverge(criterion string, last, cur *Snapshot, tol float64) (bool, error) {
	if cur == nil {
		return false, nil
	}
	switch criterion {
	case config.EarlyStopDiff:
		if last == nil {
			return false, nil
		}
		return math.Abs(cur.Loss-last.Loss) <= tol, nil
	case config.EarlyStopAbs:
		return math.Abs(cur.Loss) <= tol, nil
	case config.EarlyStopWeightDiff:
		if last == nil {
			return false, nil
		}
		if len(last.Weights) != len(cur.Weights) {
			return false, errorx.New(errcodes.ErrCodeParam,
				"weight snapshots have different dimensions, %d vs %d", len(last.Weights), len(cur.Weights))
		}
		var sum float64
		for i := range cur.Weights {
			d := cur.Weights[i] - last.Weights[i]
			sum += d * d
		}
		return math.Sqrt(sum) <= tol, nil
	}
	return false, errorx.New(errcodes.ErrCodeParam, "unknown early stop criterion %q", criterion)
}
