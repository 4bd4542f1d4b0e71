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

// Package logic_reg_vl persists and scores the locally visible part
// of a trained vertical logistic regression.
package logic_reg_vl

import (
	"encoding/json"
	"math"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/config"
	"github.com/fedlearn/sshelr/errcodes"
	learner "github.com/fedlearn/sshelr/mpc/learners/logic_reg_vl"
)

// Meta freezes the hyper parameters a model was trained with
type Meta struct {
	Penalty        string  `json:"penalty"`
	Tol            float64 `json:"tol"`
	Alpha          float64 `json:"alpha"`
	Optimizer      string  `json:"optimizer"`
	BatchSize      int64   `json:"batch_size"`
	LearningRate   float64 `json:"learning_rate"`
	MaxIter        int     `json:"max_iter"`
	EarlyStop      string  `json:"early_stop"`
	FitIntercept   bool    `json:"fit_intercept"`
	// NeedOneVsRest stays false, the secure trainer is binary only and
	// multiclass orchestration happens outside
	NeedOneVsRest  bool   `json:"need_one_vs_rest"`
	ReviewStrategy string `json:"review_strategy"`
}

// Params are the trained outputs a party may keep
type Params struct {
	Iters         int                `json:"iters"`
	LossHistory   []float64          `json:"loss_history"`
	IsConverged   bool               `json:"is_converged"`
	Weight        map[string]float64 `json:"weight"`
	Intercept     float64            `json:"intercept"`
	Header        []string           `json:"header"`
	BestIteration int                `json:"best_iteration"`
}

// Model is the serializable record of one party's training outcome
type Model struct {
	Meta   Meta   `json:"meta"`
	Params Params `json:"params"`
}

// FromTrainResult maps the reviewed coefficient slice onto the local
// feature names. The guest's intercept column, when fitted, is the last
// coefficient and is stored separately.
func FromTrainResult(res *learner.TrainResult, header []string, params *config.TrainParams, withIntercept bool) (*Model, error) {
	coefs := res.Weights
	var intercept float64
	if withIntercept {
		if len(coefs) != len(header)+1 {
			return nil, errorx.New(errcodes.ErrCodeParam,
				"got %d coefficients for %d features with intercept", len(coefs), len(header))
		}
		intercept = coefs[len(coefs)-1]
		coefs = coefs[:len(coefs)-1]
	} else if len(coefs) != len(header) {
		return nil, errorx.New(errcodes.ErrCodeParam,
			"got %d coefficients for %d features", len(coefs), len(header))
	}

	weight := make(map[string]float64, len(header))
	for i, name := range header {
		weight[name] = coefs[i]
	}
	return &Model{
		Meta: Meta{
			Penalty:        params.Penalty,
			Tol:            params.Tol,
			Alpha:          params.Alpha,
			Optimizer:      params.Optimizer,
			BatchSize:      params.BatchSize,
			LearningRate:   params.LearningRate,
			MaxIter:        params.MaxIter,
			EarlyStop:      params.EarlyStop,
			FitIntercept:   params.FitIntercept,
			NeedOneVsRest:  false,
			ReviewStrategy: params.ReviewStrategy,
		},
		Params: Params{
			Iters:         res.Epochs,
			LossHistory:   res.LossHistory,
			IsConverged:   res.IsConverged,
			Weight:        weight,
			Intercept:     intercept,
			Header:        header,
			BestIteration: res.BestIteration,
		},
	}, nil
}

// ToBytes serializes the model record
func (m *Model) ToBytes() ([]byte, error) {
	bs, err := json.Marshal(m)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to marshal model")
	}
	return bs, nil
}

// FromBytes restores a model record
func FromBytes(bs []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to unmarshal model")
	}
	return &m, nil
}

// Predict scores one sample over the locally visible coefficients with
// the exact sigmoid. Missing features score as zero.
func (m *Model) Predict(sample map[string]float64) float64 {
	z := m.Params.Intercept
	for name, w := range m.Params.Weight {
		z += w * sample[name]
	}
	return 1 / (1 + math.Exp(-z))
}
