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

// Package transfer moves tagged payloads between the two training parties.
// Every cross-party value of the protocol travels as exactly one send
// matched by exactly one receive with the same tag; the receive blocks
// until the matching send happened. Timeouts and delivery guarantees are a
// transport concern, not handled here.
package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/errcodes"
)

// Tag uniquely identifies one protocol variable within a training run
type Tag struct {
	Name  string
	Epoch int
	Batch int
}

// NewTag is a shorthand for building tags
func NewTag(name string, epoch, batch int) Tag {
	return Tag{Name: name, Epoch: epoch, Batch: batch}
}

func (t Tag) String() string {
	return fmt.Sprintf("%s.%d.%d", t.Name, t.Epoch, t.Batch)
}

// Channel is a duplex link to the counterpart party.
// Send must not block on the peer, Recv blocks until the peer sent the
// matching tag. A second send with an already used tag is a protocol error.
type Channel interface {
	Send(tag Tag, payload []byte) error
	Recv(tag Tag) ([]byte, error)
	Close() error
}

// SendJSON marshals v and sends it under tag
func SendJSON(ch Channel, tag Tag, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errorx.New(errcodes.ErrCodeEncoding, "failed to marshal %s: %s", tag, err.Error())
	}
	return ch.Send(tag, payload)
}

// RecvJSON receives the payload of tag and unmarshals it into v
func RecvJSON(ch Channel, tag Tag, v interface{}) error {
	payload, err := ch.Recv(tag)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errorx.New(errcodes.ErrCodeEncoding, "failed to unmarshal %s: %s", tag, err.Error())
	}
	return nil
}
