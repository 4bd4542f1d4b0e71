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

package transfer

import (
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/fedlearn/sshelr/errcodes"
)

// InMemory is a Channel connecting two parties running in the same process,
// used for local simulation and tests. Each endpoint owns a per-tag mailbox
// filled by the peer's Send.
type InMemory struct {
	peer *InMemory

	mu     sync.Mutex
	boxes  map[string]chan []byte
	nSent  int
	done   chan struct{}
	closed *sync.Once
}

// Pair returns two connected in-memory endpoints.
// Closing either endpoint tears down both directions.
func Pair() (*InMemory, *InMemory) {
	done := make(chan struct{})
	once := new(sync.Once)
	a := &InMemory{boxes: make(map[string]chan []byte), done: done, closed: once}
	b := &InMemory{boxes: make(map[string]chan []byte), done: done, closed: once}
	a.peer, b.peer = b, a
	return a, b
}

func (c *InMemory) box(tag Tag) chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tag.String()
	b, ok := c.boxes[key]
	if !ok {
		b = make(chan []byte, 1)
		c.boxes[key] = b
	}
	return b
}

// Send puts the payload into the peer's mailbox without blocking
func (c *InMemory) Send(tag Tag, payload []byte) error {
	select {
	case <-c.done:
		return errorx.New(errcodes.ErrCodeTransfer, "channel closed, cannot send %s", tag)
	default:
	}

	select {
	case c.peer.box(tag) <- payload:
	default:
		return errorx.New(errcodes.ErrCodeTransfer, "duplicate send for tag %s", tag)
	}

	c.mu.Lock()
	c.nSent++
	c.mu.Unlock()
	return nil
}

// Recv blocks until the peer sent the matching tag or the pair is closed.
// A payload delivered before the close is still drained.
func (c *InMemory) Recv(tag Tag) ([]byte, error) {
	box := c.box(tag)
	select {
	case payload := <-box:
		return payload, nil
	default:
	}
	select {
	case payload := <-box:
		return payload, nil
	case <-c.done:
		return nil, errorx.New(errcodes.ErrCodeTransfer, "channel closed while waiting for %s", tag)
	}
}

// Close tears down both endpoints and unblocks pending receives
func (c *InMemory) Close() error {
	c.closed.Do(func() { close(c.done) })
	return nil
}

// SentCount reports how many payloads left this endpoint, for tests that
// assert nothing was transmitted
func (c *InMemory) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nSent
}
