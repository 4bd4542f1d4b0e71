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

// Package session carries the identity of one training party: its role,
// the link to the counterpart, the homomorphic key pair and the field the
// parties agreed on. All role-conditional behavior of the protocol keys off
// the session role, fixed for the lifetime of a training run.
package session

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/google/uuid"

	"github.com/fedlearn/sshelr/crypto/fixedpoint"
	"github.com/fedlearn/sshelr/errcodes"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

// Role of a training party. Guest holds the labels, hosts hold features only.
type Role uint8

const (
	RoleGuest Role = iota + 1
	RoleHost
)

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleHost:
		return "host"
	}
	return "unknown"
}

// Other returns the counterpart role
func (r Role) Other() Role {
	if r == RoleGuest {
		return RoleHost
	}
	return RoleGuest
}

// ParseRole maps a configuration string to a Role
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "guest":
		return RoleGuest, nil
	case "host":
		return RoleHost, nil
	}
	return 0, errorx.New(errcodes.ErrCodeConfig, "unknown party role %q, should be 'guest' or 'host'", s)
}

// minFieldBits keeps enough headroom above the deepest fixed-point product
// of the protocol, which stacks six fraction widths before rescaling
const minFieldBits = 192

// FieldBits returns the field size used for a fixed-point precision
func FieldBits(precision int) int {
	if n := 6*precision + 64; n > minFieldBits {
		return n
	}
	return minFieldBits
}

// Session identifies this process within one secure training run
type Session struct {
	ID   string
	Role Role

	channel  trChannel
	homoPriv *paillier.PrivateKey

	codec       *fixedpoint.Codec
	peerHomoPub *paillier.PublicKey
}

type trChannel = transfer.Channel

// NewSession creates a party session and generates its homomorphic key pair
func NewSession(role Role, ch transfer.Channel) (*Session, error) {
	if role != RoleGuest && role != RoleHost {
		return nil, errorx.New(errcodes.ErrCodeParam, "invalid party role %d", role)
	}
	if ch == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "transfer channel must not be nil")
	}
	priv, err := paillier.GeneratePrivateKey(paillier.DefaultPrimeLength)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to generate homomorphic key pair")
	}
	return &Session{
		ID:       uuid.New().String(),
		Role:     role,
		channel:  ch,
		homoPriv: priv,
	}, nil
}

// Channel returns the duplex link to the counterpart
func (s *Session) Channel() transfer.Channel {
	return s.channel
}

// HomoPriv returns the local homomorphic private key, never sent anywhere
func (s *Session) HomoPriv() *paillier.PrivateKey {
	return s.homoPriv
}

// HomoPub returns the local homomorphic public key
func (s *Session) HomoPub() *paillier.PublicKey {
	return &s.homoPriv.PublicKey
}

// SetPeerHomoPub records the counterpart's public key after the exchange
func (s *Session) SetPeerHomoPub(pub *paillier.PublicKey) {
	s.peerHomoPub = pub
}

// PeerHomoPub returns the counterpart's public key
func (s *Session) PeerHomoPub() (*paillier.PublicKey, error) {
	if s.peerHomoPub == nil {
		return nil, errorx.New(errcodes.ErrCodeNotFound, "peer homomorphic public key has not been exchanged")
	}
	return s.peerHomoPub, nil
}

// Codec returns the fixed-point codec agreed during the handshake
func (s *Session) Codec() (*fixedpoint.Codec, error) {
	if s.codec == nil {
		return nil, errorx.New(errcodes.ErrCodeNotFound, "session handshake has not run")
	}
	return s.codec, nil
}

type fieldMsg struct {
	Q         string
	Precision int
}

// Handshake agrees on the finite field and the fixed-point precision.
// Guest picks a prime sized for the precision and announces it, host checks
// the announced precision against its own configuration.
func (s *Session) Handshake(precision int) error {
	tag := transfer.NewTag("field", -1, 0)

	if s.Role == RoleGuest {
		q, err := rand.Prime(rand.Reader, FieldBits(precision))
		if err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to generate field prime")
		}
		if err := transfer.SendJSON(s.channel, tag, &fieldMsg{Q: q.Text(16), Precision: precision}); err != nil {
			return err
		}
		s.codec, err = fixedpoint.NewCodec(q, precision)
		return err
	}

	var msg fieldMsg
	if err := transfer.RecvJSON(s.channel, tag, &msg); err != nil {
		return err
	}
	if msg.Precision != precision {
		return errorx.New(errcodes.ErrCodeFieldMismatch,
			"guest announced precision %d but local configuration says %d", msg.Precision, precision)
	}
	q, ok := new(big.Int).SetString(msg.Q, 16)
	if !ok {
		return errorx.New(errcodes.ErrCodeEncoding, "malformed field modulus %q", msg.Q)
	}
	if q.BitLen() < FieldBits(precision) {
		return errorx.New(errcodes.ErrCodeFieldMismatch,
			"announced field of %d bits is too small for precision %d", q.BitLen(), precision)
	}
	var err error
	s.codec, err = fixedpoint.NewCodec(q, precision)
	return err
}
