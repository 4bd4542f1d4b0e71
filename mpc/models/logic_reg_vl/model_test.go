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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedlearn/sshelr/config"
	learner "github.com/fedlearn/sshelr/mpc/learners/logic_reg_vl"
)

func sampleResult() *learner.TrainResult {
	return &learner.TrainResult{
		Weights:       []float64{0.8, -0.5, 0.3},
		LossHistory:   []float64{0.693, 0.65, 0.62},
		Epochs:        3,
		IsConverged:   true,
		BestIteration: -1,
	}
}

func TestFromTrainResult(t *testing.T) {
	params := config.DefaultTrainParams()
	params.FitIntercept = true

	m, err := FromTrainResult(sampleResult(), []string{"age", "income"}, params, true)
	require.NoError(t, err)
	require.Equal(t, 3, m.Params.Iters)
	require.True(t, m.Params.IsConverged)
	require.InDelta(t, 0.3, m.Params.Intercept, 1e-12)
	require.InDelta(t, 0.8, m.Params.Weight["age"], 1e-12)
	require.InDelta(t, -0.5, m.Params.Weight["income"], 1e-12)

	// header and coefficients must align
	_, err = FromTrainResult(sampleResult(), []string{"age"}, params, true)
	require.Error(t, err)
	_, err = FromTrainResult(sampleResult(), []string{"a", "b"}, params, false)
	require.Error(t, err)
}

func TestModelRoundTrip(t *testing.T) {
	params := config.DefaultTrainParams()
	m, err := FromTrainResult(sampleResult(), []string{"x1", "x2", "x3"}, params, false)
	require.NoError(t, err)

	bs, err := m.ToBytes()
	require.NoError(t, err)
	got, err := FromBytes(bs)
	require.NoError(t, err)
	require.Equal(t, m, got)

	_, err = FromBytes([]byte("not a model"))
	require.Error(t, err)
}

func TestModelPredict(t *testing.T) {
	params := config.DefaultTrainParams()
	m, err := FromTrainResult(&learner.TrainResult{Weights: []float64{1, -2, 0.5}},
		[]string{"a", "b"}, params, true)
	require.NoError(t, err)

	// z = 1·2 − 2·1 + 0.5 = 0.5
	p := m.Predict(map[string]float64{"a": 2, "b": 1})
	require.InDelta(t, 0.6224593312018546, p, 1e-9)

	// missing features contribute nothing, only the intercept remains
	p = m.Predict(map[string]float64{})
	require.InDelta(t, 0.6224593312018546, p, 1e-9)
}
