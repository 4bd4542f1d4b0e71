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

package config

import (
	"strings"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/errcodes"
)

// recognized configuration values
const (
	PenaltyL1   = "L1"
	PenaltyL2   = "L2"
	PenaltyNone = "NONE"

	EarlyStopDiff       = "diff"
	EarlyStopAbs        = "abs"
	EarlyStopWeightDiff = "weight_diff"

	ReviewRespectively = "respectively"
	ReviewAllInGuest   = "all_review_in_guest"

	// MinBatchSize is the smallest mini-batch allowed when batch_size != -1
	MinBatchSize = 10

	// DefaultPrecision is used when floating_point_precision is unset
	DefaultPrecision = 23
	// MaxPrecision bounds floating_point_precision
	MaxPrecision = 63
)

var optimizers = []string{"sgd", "rmsprop", "adam", "adagrad", "nesterov_momentum_sgd", "sqn"}

// TrainParams are the hyper parameters of one secure training run
type TrainParams struct {
	Penalty      string
	Tol          float64
	Alpha        float64
	Optimizer    string
	BatchSize    int64
	LearningRate float64
	MaxIter      int
	EarlyStop    string
	Decay        float64
	DecaySqrt    bool
	FitIntercept bool
	// FloatingPointPrecision is the fixed-point fraction width in bits,
	// -1 means unset and DefaultPrecision applies
	FloatingPointPrecision int
	ReviewStrategy         string
	// AllowReviewGuestOnly must be copied from deployment configuration,
	// see TrainerConf
	AllowReviewGuestOnly bool
}

// DefaultTrainParams returns params with the defaults of the original design
func DefaultTrainParams() *TrainParams {
	return &TrainParams{
		Penalty:                PenaltyL2,
		Tol:                    1e-4,
		Alpha:                  1.0,
		Optimizer:              "sgd",
		BatchSize:              -1,
		LearningRate:           0.01,
		MaxIter:                100,
		EarlyStop:              EarlyStopDiff,
		Decay:                  1,
		DecaySqrt:              true,
		FitIntercept:           false,
		FloatingPointPrecision: -1,
		ReviewStrategy:         ReviewRespectively,
	}
}

// Precision resolves the effective fixed-point precision
func (p *TrainParams) Precision() int {
	if p.FloatingPointPrecision < 0 {
		return DefaultPrecision
	}
	return p.FloatingPointPrecision
}

// Check validates the whole configuration surface.
// It normalizes case the way the original does and must pass before any
// cross-party communication happens.
func (p *TrainParams) Check() error {
	p.Penalty = strings.ToUpper(p.Penalty)
	if p.Penalty != PenaltyL1 && p.Penalty != PenaltyL2 && p.Penalty != PenaltyNone {
		return errorx.New(errcodes.ErrCodeConfig, "penalty not supported, should be 'L1', 'L2' or 'NONE', got %s", p.Penalty)
	}

	p.Optimizer = strings.ToLower(p.Optimizer)
	supported := false
	for _, o := range optimizers {
		if o == p.Optimizer {
			supported = true
			break
		}
	}
	if !supported {
		return errorx.New(errcodes.ErrCodeConfig, "optimizer %s not supported, should be one of %v", p.Optimizer, optimizers)
	}

	if p.BatchSize != -1 && p.BatchSize < MinBatchSize {
		return errorx.New(errcodes.ErrCodeConfig, "batch_size %d not supported, should be -1 for all data or no less than %d",
			p.BatchSize, MinBatchSize)
	}

	if p.LearningRate <= 0 {
		return errorx.New(errcodes.ErrCodeConfig, "learning_rate must be positive, got %v", p.LearningRate)
	}

	if p.MaxIter <= 0 {
		return errorx.New(errcodes.ErrCodeConfig, "max_iter must be greater or equal to 1, got %d", p.MaxIter)
	}

	p.EarlyStop = strings.ToLower(p.EarlyStop)
	if p.EarlyStop != EarlyStopDiff && p.EarlyStop != EarlyStopAbs && p.EarlyStop != EarlyStopWeightDiff {
		return errorx.New(errcodes.ErrCodeConfig, "early_stop not supported, should be 'diff', 'weight_diff' or 'abs', got %s", p.EarlyStop)
	}

	if p.FloatingPointPrecision != -1 &&
		(p.FloatingPointPrecision < 0 || p.FloatingPointPrecision > MaxPrecision) {
		return errorx.New(errcodes.ErrCodeConfig, "floating_point_precision should be unset or an integer between 0 and %d, got %d",
			MaxPrecision, p.FloatingPointPrecision)
	}

	p.ReviewStrategy = strings.ToLower(p.ReviewStrategy)
	if p.ReviewStrategy != ReviewRespectively && p.ReviewStrategy != ReviewAllInGuest {
		return errorx.New(errcodes.ErrCodeConfig, "review_strategy %s not supported, should be '%s' or '%s'",
			p.ReviewStrategy, ReviewRespectively, ReviewAllInGuest)
	}
	if p.ReviewStrategy == ReviewAllInGuest && !p.AllowReviewGuestOnly {
		return errorx.New(errcodes.ErrCodeConfig, "review strategy %s has not been authorized", ReviewAllInGuest)
	}

	return nil
}
