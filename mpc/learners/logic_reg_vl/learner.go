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

// Package logic_reg_vl trains a two party vertical logistic regression on
// additive secret shares. Neither party ever sees the other's features,
// labels or weight sub-vector, intermediates cross the boundary only as
// uniform shares or blinded homomorphic ciphertext.
package logic_reg_vl

import (
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/fedlearn/sshelr/config"
	"github.com/fedlearn/sshelr/crypto/sshare"
	vlcommon "github.com/fedlearn/sshelr/crypto/vl/common"
	"github.com/fedlearn/sshelr/errcodes"
	"github.com/fedlearn/sshelr/mpc/session"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

var logger = logrus.WithField("module", "mpc/learners/logic_reg_vl")

// Validator lets the caller score the reviewed weights against a held out
// set after every epoch. Validate returns true to request an early stop,
// the request is reconciled with the counterpart before taking effect.
type Validator interface {
	Validate(epoch int, loss float64, weights []float64) bool
	BestIteration() int
}

// TrainingState is the externally visible progress of a run
type TrainingState struct {
	Epoch       int
	LossHistory []float64
	IsConverged bool
}

// TrainResult carries what the local party may keep after training
type TrainResult struct {
	// Weights is the locally visible coefficient slice after the final
	// review
	Weights []float64
	// HostWeights is only populated at the guest under the guest-only
	// review strategy
	HostWeights []float64
	LossHistory []float64
	Epochs      int
	IsConverged bool
	// BestIteration is -1 without a validator
	BestIteration int
}

// Learner is one party of a secure vertical logistic regression run
type Learner struct {
	sess   *session.Session
	params *config.TrainParams
	ops    SecureOps
	review reviewStrategy

	state TrainingState
}

// NewLearner validates the configuration and binds the Paillier assisted
// operations to the session. It fails before any cross party communication
// when the configuration cannot be trained securely.
func NewLearner(sess *session.Session, params *config.TrainParams) (*Learner, error) {
	if sess == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "session must not be nil")
	}
	if params == nil {
		params = config.DefaultTrainParams()
	}
	if err := params.Check(); err != nil {
		return nil, err
	}
	// the remaining optimizers and the L1 penalty need operations on
	// shares that the secret sharing scheme does not offer
	if params.Optimizer != "sgd" && params.Optimizer != "nesterov_momentum_sgd" {
		return nil, errorx.New(errcodes.ErrCodeConfig,
			"optimizer %s cannot run on secret shares, use 'sgd' or 'nesterov_momentum_sgd'", params.Optimizer)
	}
	if params.Penalty == config.PenaltyL1 {
		return nil, errorx.New(errcodes.ErrCodeConfig,
			"penalty L1 cannot run on secret shares, use 'L2' or 'NONE'")
	}
	review, err := newReviewStrategy(params)
	if err != nil {
		return nil, err
	}
	return &Learner{
		sess:   sess,
		params: params,
		ops:    NewPaillierOps(sess, params),
		review: review,
	}, nil
}

// State returns a copy of the current training progress
func (l *Learner) State() TrainingState {
	st := l.state
	st.LossHistory = append([]float64(nil), l.state.LossHistory...)
	return st
}

type statusMsg struct {
	Converged bool
	EarlyStop bool
}

type lossSyncMsg struct {
	Loss float64
}

// Fit runs the full training loop on the local sample set. The guest
// passes its labels, the host passes nil. Samples must already be aligned
// with the counterpart's, row by row.
func (l *Learner) Fit(features [][]float64, labels []float64, val Validator) (*TrainResult, error) {
	if l.sess.Role == session.RoleGuest && labels == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "the guest must hold the labels")
	}
	if l.sess.Role == session.RoleHost && labels != nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "the host must not hold labels")
	}

	if err := l.sess.Handshake(l.params.Precision()); err != nil {
		return nil, err
	}
	if err := l.ops.TransferPubKey(); err != nil {
		return nil, err
	}
	codec, err := l.sess.Codec()
	if err != nil {
		return nil, err
	}

	if l.sess.Role == session.RoleGuest && l.params.FitIntercept {
		features = appendInterceptColumn(features)
	}
	batches, err := vlcommon.MakeBatches(features, labels, l.params.BatchSize, codec)
	if err != nil {
		return nil, err
	}

	wSelf, wRemote, err := l.shareInitModel(batches[0].Dim())
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"role":    l.sess.Role.String(),
		"samples": len(features),
		"dim":     batches[0].Dim(),
		"batches": len(batches),
	}).Info("secure training started")

	q := codec.Field()
	var lastSnap *Snapshot
	var lastOutcome *ReviewOutcome
	for t := 0; t < l.params.MaxIter; t++ {
		// both parties apply the same deterministic permutation, so the
		// rows stay aligned across re-batched sweeps
		if t > 0 && len(batches) > 1 {
			features, labels = vlcommon.ReorderSamples(features, labels, t)
			if batches, err = vlcommon.MakeBatches(features, labels, l.params.BatchSize, codec); err != nil {
				return nil, err
			}
		}
		lossShare := big.NewInt(0)
		total := 0
		for bi, bt := range batches {
			y, err := l.ops.Predict(wSelf, wRemote, bt, t, bi)
			if err != nil {
				return nil, err
			}
			e, err := l.computeError(y, bt)
			if err != nil {
				return nil, err
			}
			wa, wb := l.canonical(wSelf, wRemote)
			if wa, wb, err = l.ops.ComputeGradient(wa, wb, e, bt, t, bi); err != nil {
				return nil, err
			}
			wSelf, wRemote = l.fromCanonical(wa, wb)

			bl, err := l.ops.ComputeLoss(y, bt.Labels, t, bi)
			if err != nil {
				return nil, err
			}
			lossShare.Add(lossShare, bl).Mod(lossShare, q)
			total += bt.N
		}

		loss, err := l.revealLoss(lossShare, total, t)
		if err != nil {
			return nil, err
		}
		l.state.LossHistory = append(l.state.LossHistory, loss)

		outcome, err := l.review.review(l.sess, wSelf, wRemote, t)
		if err != nil {
			return nil, err
		}
		lastOutcome = outcome

		snap := &Snapshot{Loss: loss, Weights: outcome.Visible}
		localConv, err := CheckConverge(l.params.EarlyStop, lastSnap, snap, l.params.Tol)
		if err != nil {
			return nil, err
		}
		lastSnap = snap

		stopReq := false
		if val != nil {
			stopReq = val.Validate(t, loss, outcome.Visible)
		}

		peer, err := l.exchangeStatus(t, statusMsg{Converged: localConv, EarlyStop: stopReq})
		if err != nil {
			return nil, err
		}
		l.state.Epoch = t + 1
		converged := localConv && peer.Converged
		logger.WithFields(logrus.Fields{
			"epoch":     t,
			"loss":      loss,
			"converged": converged,
		}).Debug("epoch finished")

		if converged {
			l.state.IsConverged = true
			break
		}
		if stopReq || peer.EarlyStop {
			logger.WithField("epoch", t).Info("early stop requested")
			break
		}
	}

	res := &TrainResult{
		Weights:       lastOutcome.Visible,
		HostWeights:   lastOutcome.Counterpart,
		LossHistory:   l.State().LossHistory,
		Epochs:        l.state.Epoch,
		IsConverged:   l.state.IsConverged,
		BestIteration: -1,
	}
	if val != nil {
		res.BestIteration = val.BestIteration()
	}
	return res, nil
}

// shareInitModel splits the zero initial model, each party splits the
// sub-vector it owns and receives a share of the other
func (l *Learner) shareInitModel(dSelf int) (*sshare.Tensor, *sshare.Tensor, error) {
	codec, err := l.sess.Codec()
	if err != nil {
		return nil, nil, err
	}
	ch := l.sess.Channel()
	myTag := transfer.NewTag(subVarName(l.sess.Role), -1, 0)
	peerTag := transfer.NewTag(subVarName(l.sess.Role.Other()), -1, 0)

	wSelf, err := sshare.FromPlaintext(myTag, make([]float64, dSelf), codec, ch)
	if err != nil {
		return nil, nil, err
	}
	wRemote, err := sshare.FromPeer(peerTag, codec, ch)
	if err != nil {
		return nil, nil, err
	}
	return wSelf, wRemote, nil
}

// computeError turns the prediction share into the residual share, only
// the guest shifts it by the labels
func (l *Learner) computeError(y *sshare.Tensor, bt *vlcommon.Batch) (*sshare.Tensor, error) {
	if l.sess.Role == session.RoleHost {
		return y, nil
	}
	codec, err := l.sess.Codec()
	if err != nil {
		return nil, err
	}
	encoded := make([]*big.Int, len(bt.Labels))
	for i, lv := range bt.Labels {
		encoded[i] = codec.EncodeAt(lv, y.Shift)
	}
	e, err := y.SubPlainVec(encoded)
	if err != nil {
		return nil, err
	}
	e.Name = "e"
	return e, nil
}

// canonical orders the local share pair as (wa, wb)
func (l *Learner) canonical(wSelf, wRemote *sshare.Tensor) (*sshare.Tensor, *sshare.Tensor) {
	if l.sess.Role == session.RoleGuest {
		return wRemote, wSelf
	}
	return wSelf, wRemote
}

func (l *Learner) fromCanonical(wa, wb *sshare.Tensor) (wSelf, wRemote *sshare.Tensor) {
	if l.sess.Role == session.RoleGuest {
		return wb, wa
	}
	return wa, wb
}

// revealLoss reconstructs the epoch loss at the guest and syncs the
// plaintext value back, so both parties judge convergence on one number
func (l *Learner) revealLoss(share *big.Int, total, epoch int) (float64, error) {
	codec, err := l.sess.Codec()
	if err != nil {
		return 0, err
	}
	ch := l.sess.Channel()
	lossShift := 4 * uint(codec.Precision())
	t := sshare.NewTensor("loss", []*big.Int{share}, lossShift, codec)
	shareTag := transfer.NewTag("loss_share", epoch, 0)
	syncTag := transfer.NewTag("loss_sync", epoch, 0)

	if l.sess.Role == session.RoleHost {
		if err := t.BroadcastReconstructShare(shareTag, ch); err != nil {
			return 0, err
		}
		var msg lossSyncMsg
		if err := transfer.RecvJSON(ch, syncTag, &msg); err != nil {
			return 0, err
		}
		return msg.Loss, nil
	}

	vals, err := t.ReconstructUnilateral(shareTag, ch)
	if err != nil {
		return 0, err
	}
	loss := vals[0] / float64(total)
	if err := transfer.SendJSON(ch, syncTag, &lossSyncMsg{Loss: loss}); err != nil {
		return 0, err
	}
	return loss, nil
}

// exchangeStatus swaps convergence verdicts so both parties stop on the
// same epoch
func (l *Learner) exchangeStatus(epoch int, mine statusMsg) (*statusMsg, error) {
	ch := l.sess.Channel()
	myTag := transfer.NewTag("train_status_"+l.sess.Role.String(), epoch, 0)
	peerTag := transfer.NewTag("train_status_"+l.sess.Role.Other().String(), epoch, 0)
	if err := transfer.SendJSON(ch, myTag, &mine); err != nil {
		return nil, err
	}
	var peer statusMsg
	if err := transfer.RecvJSON(ch, peerTag, &peer); err != nil {
		return nil, err
	}
	return &peer, nil
}

func appendInterceptColumn(features [][]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		out[i] = append(append(make([]float64, 0, len(row)+1), row...), 1)
	}
	return out
}
