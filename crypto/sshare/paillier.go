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

package sshare

import (
	cryptoRand "crypto/rand"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/crypto/fixedpoint"
	"github.com/fedlearn/sshelr/errcodes"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

// blindSlackBits is the statistical hiding margin added on top of the
// largest possible product when drawing blinding factors.
const blindSlackBits = 90

// PaillierTensor is a vector of Paillier ciphertexts under one party's key.
// Crossing terms of a share product are evaluated on it homomorphically by
// the party that does not hold the private key.
type PaillierTensor struct {
	Pub   *paillier.PublicKey
	Cts   []*big.Int
	Shift uint
}

type cipherMsg struct {
	Cts   []string
	Shift uint
}

// EncryptShare encrypts every element of the local share under pub
func EncryptShare(pub *paillier.PublicKey, t *Tensor) (*PaillierTensor, error) {
	cts := make([]*big.Int, len(t.Vals))
	for i, v := range t.Vals {
		ct, err := pub.Encrypt(v)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "paillier encryption failed")
		}
		cts[i] = ct
	}
	return &PaillierTensor{Pub: pub, Cts: cts, Shift: t.Shift}, nil
}

// Send transmits the ciphertext vector under tag
func (p *PaillierTensor) Send(tag transfer.Tag, ch transfer.Channel) error {
	return transfer.SendJSON(ch, tag, &cipherMsg{Cts: hexVals(p.Cts), Shift: p.Shift})
}

// RecvCiphers receives a ciphertext vector produced under pub
func RecvCiphers(tag transfer.Tag, pub *paillier.PublicKey, ch transfer.Channel) (*PaillierTensor, error) {
	var msg cipherMsg
	if err := transfer.RecvJSON(ch, tag, &msg); err != nil {
		return nil, err
	}
	cts, err := decodeHexVals(msg.Cts)
	if err != nil {
		return nil, err
	}
	return &PaillierTensor{Pub: pub, Cts: cts, Shift: msg.Shift}, nil
}

// RandBlinds draws blinding factors wide enough to statistically hide a
// sum of up to n products of field elements
func RandBlinds(n int, fieldBits int) ([]*big.Int, error) {
	bound := new(big.Int).Lsh(big.NewInt(1), uint(2*fieldBits+blindSlackBits))
	out := make([]*big.Int, n)
	for i := range out {
		r, err := cryptoRand.Int(cryptoRand.Reader, bound)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to draw blinding factor")
		}
		out[i] = r
	}
	return out, nil
}

// LinearCombine evaluates coeffs·cts + blinds homomorphically: row i of the
// output is Enc(Σⱼ coeffs[i][j]·mⱼ + blinds[i]) under p.Pub. Coefficients
// must be canonical field representatives so every plaintext stays inside
// the Paillier message space.
func (p *PaillierTensor) LinearCombine(coeffs [][]*big.Int, blinds []*big.Int, addShift uint) (*PaillierTensor, error) {
	if len(coeffs) != len(blinds) {
		return nil, errorx.New(errcodes.ErrCodeParam, "got %d blinds for %d output rows", len(blinds), len(coeffs))
	}
	out := make([]*big.Int, len(coeffs))
	for i, row := range coeffs {
		if len(row) != len(p.Cts) {
			return nil, errorx.New(errcodes.ErrCodeParam,
				"coefficient row has %d entries, cipher vector has %d", len(row), len(p.Cts))
		}
		acc, err := p.Pub.Encrypt(blinds[i])
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "paillier encryption failed")
		}
		for j, c := range row {
			if c.Sign() == 0 {
				continue
			}
			term := p.Pub.CypherPlainMultiply(p.Cts[j], c)
			acc = p.Pub.CyphersAdd(acc, term)
		}
		out[i] = acc
	}
	return &PaillierTensor{Pub: p.Pub, Cts: out, Shift: p.Shift + addShift}, nil
}

// DecryptToShare decrypts a response vector produced under the local key
// and reduces it into the field, yielding the local share of the blinded
// cross term
func DecryptToShare(name string, priv *paillier.PrivateKey, p *PaillierTensor, codec *fixedpoint.Codec) (*Tensor, error) {
	q := codec.Field()
	vals := make([]*big.Int, len(p.Cts))
	for i, ct := range p.Cts {
		m := priv.Decrypt(ct)
		vals[i] = m.Mod(m, q)
	}
	return NewTensor(name, vals, p.Shift, codec), nil
}

// NegBlindShare turns the blinding factors the evaluator injected into its
// own share of the cross term, (−r mod q) per row
func NegBlindShare(name string, blinds []*big.Int, shift uint, codec *fixedpoint.Codec) *Tensor {
	q := codec.Field()
	vals := make([]*big.Int, len(blinds))
	for i, r := range blinds {
		v := new(big.Int).Mod(r, q)
		v.Sub(q, v).Mod(v, q)
		vals[i] = v
	}
	return NewTensor(name, vals, shift, codec)
}
