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
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/config"
	"github.com/fedlearn/sshelr/crypto/fixedpoint"
	"github.com/fedlearn/sshelr/crypto/sshare"
	vlcommon "github.com/fedlearn/sshelr/crypto/vl/common"
	"github.com/fedlearn/sshelr/errcodes"
	"github.com/fedlearn/sshelr/mpc/session"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

// momentumFactor is the fixed momentum coefficient of
// nesterov_momentum_sgd
const momentumFactor = 0.9

// SecureOps are the cryptographic operations one training round is built
// from. Variants provide their own implementation, embedding
// UnimplementedOps so that partial variants fail loudly on operations they
// do not carry.
type SecureOps interface {
	// TransferPubKey exchanges homomorphic public keys with the counterpart
	TransferPubKey() error

	// Predict evaluates the shared linear predictor on a local batch and
	// returns the local share of the approximated prediction
	Predict(wSelf, wRemote *sshare.Tensor, batch *vlcommon.Batch, epoch, iter int) (*sshare.Tensor, error)

	// ShareZ moves an encrypted intermediate from host to guest. The host
	// passes its share and gets nil back, the guest passes nil and gets
	// the received cipher vector.
	ShareZ(z *sshare.Tensor, epoch, iter int) (*sshare.PaillierTensor, error)

	// ComputeGradient runs the blinded gradient exchange and the local
	// update, returning the new shares in canonical (wa, wb) order
	ComputeGradient(wa, wb, errShare *sshare.Tensor, batch *vlcommon.Batch, epoch, iter int) (*sshare.Tensor, *sshare.Tensor, error)

	// ComputeLoss returns the local share of the summed batch loss,
	// labels are nil on the host
	ComputeLoss(y *sshare.Tensor, labels []float64, epoch, iter int) (*big.Int, error)
}

// UnimplementedOps fails every operation. Concrete variants embed it and
// override what they support.
type UnimplementedOps struct{}

func (UnimplementedOps) TransferPubKey() error {
	return errorx.New(errcodes.ErrCodeUnimplemented, "operation transfer_pubkey is not implemented by this variant")
}

func (UnimplementedOps) Predict(_, _ *sshare.Tensor, _ *vlcommon.Batch, _, _ int) (*sshare.Tensor, error) {
	return nil, errorx.New(errcodes.ErrCodeUnimplemented, "operation predict is not implemented by this variant")
}

func (UnimplementedOps) ShareZ(_ *sshare.Tensor, _, _ int) (*sshare.PaillierTensor, error) {
	return nil, errorx.New(errcodes.ErrCodeUnimplemented, "operation share_z is not implemented by this variant")
}

func (UnimplementedOps) ComputeGradient(_, _, _ *sshare.Tensor, _ *vlcommon.Batch, _, _ int) (*sshare.Tensor, *sshare.Tensor, error) {
	return nil, nil, errorx.New(errcodes.ErrCodeUnimplemented, "operation compute_gradient is not implemented by this variant")
}

func (UnimplementedOps) ComputeLoss(_ *sshare.Tensor, _ []float64, _, _ int) (*big.Int, error) {
	return nil, errorx.New(errcodes.ErrCodeUnimplemented, "operation compute_loss is not implemented by this variant")
}

// subVarName maps a role to the name of the sub-vector it owns, following
// the wb-for-guest, wa-for-host convention
func subVarName(r session.Role) string {
	if r == session.RoleGuest {
		return "wb"
	}
	return "wa"
}

// the guest leads local truncation, the host follows with the complement
// formula
func truncLeader(r session.Role) bool {
	return r == session.RoleGuest
}

// PaillierOps is the homomorphic-encryption assisted implementation of the
// secure operations. Cross terms between one party's plaintext matrix and
// the other party's share are evaluated under the share owner's own key
// and handed back blinded, so neither party ever sees a bare intermediate.
type PaillierOps struct {
	UnimplementedOps

	sess   *session.Session
	params *config.TrainParams

	momWa, momWb *sshare.Tensor

	// guest side cache of the host error cipher of the current batch,
	// reused by the loss share so the host encrypts only once
	hostErrCipher *sshare.PaillierTensor
}

// NewPaillierOps wires the Paillier variant to a live session
func NewPaillierOps(sess *session.Session, params *config.TrainParams) *PaillierOps {
	return &PaillierOps{sess: sess, params: params}
}

type pubKeyMsg struct {
	N string
	G string
}

// TransferPubKey sends the local Paillier public key and installs the
// counterpart's into the session
func (o *PaillierOps) TransferPubKey() error {
	ch := o.sess.Channel()
	pub := o.sess.HomoPub()
	myTag := transfer.NewTag("homo_pubkey_"+o.sess.Role.String(), -1, 0)
	if err := transfer.SendJSON(ch, myTag, &pubKeyMsg{N: pub.N.Text(16), G: pub.G.Text(16)}); err != nil {
		return err
	}

	peerTag := transfer.NewTag("homo_pubkey_"+o.sess.Role.Other().String(), -1, 0)
	var msg pubKeyMsg
	if err := transfer.RecvJSON(ch, peerTag, &msg); err != nil {
		return err
	}
	n, ok := new(big.Int).SetString(msg.N, 16)
	if !ok {
		return errorx.New(errcodes.ErrCodeEncoding, "malformed public key modulus")
	}
	g, ok := new(big.Int).SetString(msg.G, 16)
	if !ok {
		return errorx.New(errcodes.ErrCodeEncoding, "malformed public key generator")
	}
	o.sess.SetPeerHomoPub(&paillier.PublicKey{N: n, G: g})
	return nil
}

func (o *PaillierOps) Predict(wSelf, wRemote *sshare.Tensor, batch *vlcommon.Batch, epoch, iter int) (*sshare.Tensor, error) {
	codec, err := o.sess.Codec()
	if err != nil {
		return nil, err
	}
	peerPub, err := o.sess.PeerHomoPub()
	if err != nil {
		return nil, err
	}
	ch := o.sess.Channel()
	q := codec.Field()
	f := uint(codec.Precision())
	mySub := subVarName(o.sess.Role)
	peerSub := subVarName(o.sess.Role.Other())

	// hand the counterpart my share of its sub-vector, encrypted under my
	// own key so only I can open the blinded product it sends back
	encMine, err := sshare.EncryptShare(o.sess.HomoPub(), wRemote)
	if err != nil {
		return nil, err
	}
	if err := encMine.Send(transfer.NewTag("enc_share_"+peerSub, epoch, iter), ch); err != nil {
		return nil, err
	}

	encPeer, err := sshare.RecvCiphers(transfer.NewTag("enc_share_"+mySub, epoch, iter), peerPub, ch)
	if err != nil {
		return nil, err
	}
	blinds, err := sshare.RandBlinds(batch.N, q.BitLen())
	if err != nil {
		return nil, err
	}
	resp, err := encPeer.LinearCombine(batch.X, blinds, f)
	if err != nil {
		return nil, err
	}
	if err := resp.Send(transfer.NewTag("resp_share_"+mySub, epoch, iter), ch); err != nil {
		return nil, err
	}

	// z share: local product, minus my blinds, plus the decrypted response
	z := sshare.NewTensor("z", sshare.MatVecMod(batch.X, wSelf.Vals, q), wSelf.Shift+f, codec)
	z, err = z.Add(sshare.NegBlindShare("z", blinds, z.Shift, codec))
	if err != nil {
		return nil, err
	}
	respMine, err := sshare.RecvCiphers(transfer.NewTag("resp_share_"+peerSub, epoch, iter), o.sess.HomoPub(), ch)
	if err != nil {
		return nil, err
	}
	cross, err := sshare.DecryptToShare("z", o.sess.HomoPriv(), respMine, codec)
	if err != nil {
		return nil, err
	}
	z, err = z.Add(cross)
	if err != nil {
		return nil, err
	}

	// first order sigmoid approximation, y = 0.25 z + 0.5, the guest adds
	// the public constant exactly once
	y := z.ScalePlain(codec.Encode(0.25), f)
	y.Name = "y"
	if o.sess.Role == session.RoleGuest {
		y = y.AddPlainConst(codec.EncodeAt(0.5, y.Shift))
	}
	return y, nil
}

func (o *PaillierOps) ShareZ(z *sshare.Tensor, epoch, iter int) (*sshare.PaillierTensor, error) {
	ch := o.sess.Channel()
	tag := transfer.NewTag("z", epoch, iter)
	if o.sess.Role == session.RoleHost {
		if z == nil {
			return nil, errorx.New(errcodes.ErrCodeParam, "host must provide the intermediate for share_z")
		}
		enc, err := sshare.EncryptShare(o.sess.HomoPub(), z)
		if err != nil {
			return nil, err
		}
		return nil, enc.Send(tag, ch)
	}
	peerPub, err := o.sess.PeerHomoPub()
	if err != nil {
		return nil, err
	}
	return sshare.RecvCiphers(tag, peerPub, ch)
}

func (o *PaillierOps) ComputeGradient(wa, wb, errShare *sshare.Tensor, batch *vlcommon.Batch, epoch, iter int) (*sshare.Tensor, *sshare.Tensor, error) {
	codec, err := o.sess.Codec()
	if err != nil {
		return nil, nil, err
	}
	ch := o.sess.Channel()
	q := codec.Field()
	f := uint(codec.Precision())
	role := o.sess.Role
	mySub := subVarName(role)
	peerSub := subVarName(role.Other())

	wSelf, wRemote := wb, wa
	if role == session.RoleHost {
		wSelf, wRemote = wa, wb
	}

	// error shares cross both ways, each under the sender's own key
	var encPeerErr *sshare.PaillierTensor
	if role == session.RoleGuest {
		encMine, err := sshare.EncryptShare(o.sess.HomoPub(), errShare)
		if err != nil {
			return nil, nil, err
		}
		if err := encMine.Send(transfer.NewTag("enc_err_guest", epoch, iter), ch); err != nil {
			return nil, nil, err
		}
		if encPeerErr, err = o.ShareZ(nil, epoch, iter); err != nil {
			return nil, nil, err
		}
		o.hostErrCipher = encPeerErr
	} else {
		if _, err := o.ShareZ(errShare, epoch, iter); err != nil {
			return nil, nil, err
		}
		peerPub, err := o.sess.PeerHomoPub()
		if err != nil {
			return nil, nil, err
		}
		if encPeerErr, err = sshare.RecvCiphers(transfer.NewTag("enc_err_guest", epoch, iter), peerPub, ch); err != nil {
			return nil, nil, err
		}
	}

	// respond with the counterpart's blinded piece of my sub-vector
	// gradient, Xᵀ runs against its error cipher
	xT := transpose(batch.X, wSelf.Dim())
	blinds, err := sshare.RandBlinds(wSelf.Dim(), q.BitLen())
	if err != nil {
		return nil, nil, err
	}
	resp, err := encPeerErr.LinearCombine(xT, blinds, f)
	if err != nil {
		return nil, nil, err
	}
	if err := resp.Send(transfer.NewTag("resp_grad_"+mySub, epoch, iter), ch); err != nil {
		return nil, nil, err
	}

	gShift := errShare.Shift + f
	gSelf := sshare.NewTensor("g_"+mySub, sshare.MatTVecMod(batch.X, errShare.Vals, q), gShift, codec)
	gSelf, err = gSelf.Add(sshare.NegBlindShare("g_"+mySub, blinds, gShift, codec))
	if err != nil {
		return nil, nil, err
	}

	respMine, err := sshare.RecvCiphers(transfer.NewTag("resp_grad_"+peerSub, epoch, iter), o.sess.HomoPub(), ch)
	if err != nil {
		return nil, nil, err
	}
	gPeer, err := sshare.DecryptToShare("g_"+peerSub, o.sess.HomoPriv(), respMine, codec)
	if err != nil {
		return nil, nil, err
	}

	if o.params.Optimizer == "nesterov_momentum_sgd" {
		if err := o.initMomentum(wa.Dim(), wb.Dim(), epoch, iter, codec); err != nil {
			return nil, nil, err
		}
	}

	lrT := o.learningRate(epoch)
	newSelf, newMomSelf, err := o.updateSub(wSelf, gSelf, o.momentumFor(mySub), batch, lrT, codec)
	if err != nil {
		return nil, nil, err
	}
	newRemote, newMomRemote, err := o.updateSub(wRemote, gPeer, o.momentumFor(peerSub), batch, lrT, codec)
	if err != nil {
		return nil, nil, err
	}
	o.setMomentum(mySub, newMomSelf)
	o.setMomentum(peerSub, newMomRemote)

	if role == session.RoleGuest {
		return newRemote, newSelf, nil
	}
	return newSelf, newRemote, nil
}

// updateSub applies the optimizer step to one sub-vector share. The raw
// gradient sits at five extra fraction widths after averaging and the
// learning rate, one local truncation brings the step back to the base
// width.
func (o *PaillierOps) updateSub(w, g, mom *sshare.Tensor, batch *vlcommon.Batch, lrT float64, codec *fixedpoint.Codec) (*sshare.Tensor, *sshare.Tensor, error) {
	f := uint(codec.Precision())
	leader := truncLeader(o.sess.Role)

	raw := g.ScalePlain(batch.Recip, f).ScalePlain(codec.Encode(lrT), f)
	if o.params.Penalty == config.PenaltyL2 {
		reg := w.ScalePlain(codec.EncodeAt(lrT*o.params.Alpha, raw.Shift-w.Shift), raw.Shift-w.Shift)
		var err error
		if raw, err = raw.Add(reg); err != nil {
			return nil, nil, err
		}
	}
	delta := raw.Truncate(raw.Shift-f, leader)

	if o.params.Optimizer != "nesterov_momentum_sgd" {
		newW, err := w.Sub(delta)
		return newW, nil, err
	}

	// simplified Nesterov momentum on shares, v' = µv + δ, step = µv' + δ
	mu := codec.Encode(momentumFactor)
	muV := mom.ScalePlain(mu, f).Truncate(f, leader)
	newMom, err := muV.Add(delta)
	if err != nil {
		return nil, nil, err
	}
	step, err := newMom.ScalePlain(mu, f).Truncate(f, leader).Add(delta)
	if err != nil {
		return nil, nil, err
	}
	newW, err := w.Sub(step)
	if err != nil {
		return nil, nil, err
	}
	return newW, newMom, nil
}

// initMomentum lazily splits zero momentum shares on first use so both
// sides hold uniform shares before the first truncation touches them
func (o *PaillierOps) initMomentum(dimWa, dimWb, epoch, iter int, codec *fixedpoint.Codec) error {
	if o.momWa != nil {
		return nil
	}
	ch := o.sess.Channel()
	waTag := transfer.NewTag("mom_wa", epoch, iter)
	wbTag := transfer.NewTag("mom_wb", epoch, iter)
	var err error
	if o.sess.Role == session.RoleGuest {
		if o.momWb, err = sshare.FromPlaintext(wbTag, make([]float64, dimWb), codec, ch); err != nil {
			return err
		}
		o.momWa, err = sshare.FromPeer(waTag, codec, ch)
		return err
	}
	if o.momWa, err = sshare.FromPlaintext(waTag, make([]float64, dimWa), codec, ch); err != nil {
		return err
	}
	o.momWb, err = sshare.FromPeer(wbTag, codec, ch)
	return err
}

func (o *PaillierOps) momentumFor(sub string) *sshare.Tensor {
	if sub == "wa" {
		return o.momWa
	}
	return o.momWb
}

func (o *PaillierOps) setMomentum(sub string, t *sshare.Tensor) {
	if t == nil {
		return
	}
	if sub == "wa" {
		o.momWa = t
	} else {
		o.momWb = t
	}
}

func (o *PaillierOps) learningRate(epoch int) float64 {
	base := 1 + o.params.Decay*float64(epoch)
	if o.params.DecaySqrt {
		return o.params.LearningRate / math.Sqrt(base)
	}
	return o.params.LearningRate / base
}

// ComputeLoss builds the local share of the summed first order logloss
// approximation, Σ ln2 − (label − ½)·z. The guest reuses the host error
// cipher cached by the gradient exchange, so the call order within a batch
// matters.
func (o *PaillierOps) ComputeLoss(y *sshare.Tensor, labels []float64, epoch, iter int) (*big.Int, error) {
	codec, err := o.sess.Codec()
	if err != nil {
		return nil, err
	}
	ch := o.sess.Channel()
	q := codec.Field()
	f := uint(codec.Precision())
	tag := transfer.NewTag("loss_blind", epoch, iter)

	if o.sess.Role == session.RoleHost {
		ct, err := sshare.RecvCiphers(tag, o.sess.HomoPub(), ch)
		if err != nil {
			return nil, err
		}
		m := o.sess.HomoPriv().Decrypt(ct.Cts[0])
		return m.Mod(m, q), nil
	}

	if o.hostErrCipher == nil {
		return nil, errorx.New(errcodes.ErrCodeInternal, "loss share requested before the gradient exchange of this batch")
	}
	if len(labels) != y.Dim() {
		return nil, errorx.New(errcodes.ErrCodeParam, "got %d labels for %d predictions", len(labels), y.Dim())
	}

	// the guest's z share is 4y − 2, the host's is 4y, both at the
	// prediction width
	fourC := make([]*big.Int, len(labels))
	negFourC := make([]*big.Int, len(labels))
	sumC := big.NewInt(0)
	four := big.NewInt(4)
	for i, l := range labels {
		c := codec.Encode(l - 0.5)
		sumC.Add(sumC, c).Mod(sumC, q)
		fc := new(big.Int).Mul(c, four)
		fc.Mod(fc, q)
		fourC[i] = fc
		negFourC[i] = new(big.Int).Sub(q, fc)
		negFourC[i].Mod(negFourC[i], q)
	}

	lossShift := y.Shift + f
	local := codec.EncodeAt(float64(len(labels))*math.Ln2, lossShift)
	local.Sub(local, sshare.DotMod(fourC, y.Vals, q))
	twoSumC := new(big.Int).Mul(codec.EncodeAt(2, y.Shift), sumC)
	local.Add(local, twoSumC).Mod(local, q)

	blinds, err := sshare.RandBlinds(1, q.BitLen())
	if err != nil {
		return nil, err
	}
	ct, err := o.hostErrCipher.LinearCombine([][]*big.Int{negFourC}, blinds, f)
	if err != nil {
		return nil, err
	}
	if err := ct.Send(tag, ch); err != nil {
		return nil, err
	}
	o.hostErrCipher = nil

	local.Sub(local, blinds[0]).Mod(local, q)
	return local, nil
}

// transpose flips a batch matrix into d rows of n coefficients
func transpose(x [][]*big.Int, d int) [][]*big.Int {
	out := make([][]*big.Int, d)
	for j := 0; j < d; j++ {
		out[j] = make([]*big.Int, len(x))
		for i := range x {
			out[j][i] = x[i][j]
		}
	}
	return out
}
