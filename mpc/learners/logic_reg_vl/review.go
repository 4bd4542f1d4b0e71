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
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/config"
	"github.com/fedlearn/sshelr/crypto/sshare"
	"github.com/fedlearn/sshelr/errcodes"
	"github.com/fedlearn/sshelr/mpc/session"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

// reviewHostDimBound caps how many host coefficients may flow to the guest
// under the guest-only strategy, beyond it the host's feature space could
// be reconstructed from the model
const reviewHostDimBound = 2

// ReviewOutcome is what one epoch's model review leaves in plaintext at
// the local party
type ReviewOutcome struct {
	// Visible is the locally owned sub-vector, zeros when the strategy
	// forbids the local party to see it
	Visible []float64
	// Counterpart is only populated at the guest under the guest-only
	// strategy
	Counterpart []float64
}

// reviewStrategy reconstructs model weights once per epoch according to
// the disclosure policy both parties agreed on
type reviewStrategy interface {
	review(sess *session.Session, wSelf, wRemote *sshare.Tensor, epoch int) (*ReviewOutcome, error)
}

// newReviewStrategy maps the validated configuration value to a strategy.
// The guest-only strategy additionally needs the process wide
// authorization switch.
func newReviewStrategy(params *config.TrainParams) (reviewStrategy, error) {
	switch params.ReviewStrategy {
	case config.ReviewRespectively:
		return respectiveReview{}, nil
	case config.ReviewAllInGuest:
		if !params.AllowReviewGuestOnly {
			return nil, errorx.New(errcodes.ErrCodeConfig,
				"review strategy %s requires explicit authorization", config.ReviewAllInGuest)
		}
		return guestOnlyReview{}, nil
	}
	return nil, errorx.New(errcodes.ErrCodeUnknownStrategy, "unknown review strategy %q", params.ReviewStrategy)
}

// respectiveReview reconstructs each sub-vector at its owner, the guest
// sees wb and the host sees wa
type respectiveReview struct{}

func (respectiveReview) review(sess *session.Session, wSelf, wRemote *sshare.Tensor, epoch int) (*ReviewOutcome, error) {
	ch := sess.Channel()
	mySub := subVarName(sess.Role)
	peerSub := subVarName(sess.Role.Other())

	if err := wRemote.BroadcastReconstructShare(transfer.NewTag(peerSub, epoch, 0), ch); err != nil {
		return nil, err
	}
	vals, err := wSelf.ReconstructUnilateral(transfer.NewTag(mySub, epoch, 0), ch)
	if err != nil {
		return nil, err
	}
	return &ReviewOutcome{Visible: vals}, nil
}

// guestOnlyReview reconstructs the whole model at the guest, the host
// learns nothing. Both parties bound the host sub-vector dimension before
// a single share moves, a violation aborts training symmetrically.
type guestOnlyReview struct{}

func (guestOnlyReview) review(sess *session.Session, wSelf, wRemote *sshare.Tensor, epoch int) (*ReviewOutcome, error) {
	ch := sess.Channel()
	hostDim := wSelf.Dim()
	if sess.Role == session.RoleGuest {
		hostDim = wRemote.Dim()
	}
	if hostDim > reviewHostDimBound {
		return nil, errorx.New(errcodes.ErrCodeProtocolViolation,
			"guest-only review refused, host sub-vector dimension %d exceeds bound %d", hostDim, reviewHostDimBound)
	}

	wbTag := transfer.NewTag("wb", epoch, 0)
	waTag := transfer.NewTag("wa", epoch, 0)
	if sess.Role == session.RoleHost {
		if err := wRemote.BroadcastReconstructShare(wbTag, ch); err != nil {
			return nil, err
		}
		if err := wSelf.BroadcastReconstructShare(waTag, ch); err != nil {
			return nil, err
		}
		return &ReviewOutcome{Visible: make([]float64, wSelf.Dim())}, nil
	}

	wb, err := wSelf.ReconstructUnilateral(wbTag, ch)
	if err != nil {
		return nil, err
	}
	wa, err := wRemote.ReconstructUnilateral(waTag, ch)
	if err != nil {
		return nil, err
	}
	return &ReviewOutcome{Visible: wb, Counterpart: wa}, nil
}
