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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendRecvMatchingTag(t *testing.T) {
	a, b := Pair()
	defer a.Close()

	tag := NewTag("wb", 0, 2)
	require.NoError(t, a.Send(tag, []byte("share")))

	got, err := b.Recv(tag)
	require.NoError(t, err)
	require.Equal(t, []byte("share"), got)
}

func TestRecvBlocksUntilSend(t *testing.T) {
	a, b := Pair()
	defer a.Close()

	tag := NewTag("loss", 3, 0)
	done := make(chan []byte)
	go func() {
		payload, err := b.Recv(tag)
		require.NoError(t, err)
		done <- payload
	}()

	select {
	case <-done:
		t.Fatal("recv returned before the matching send")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, a.Send(tag, []byte("0.693")))
	require.Equal(t, []byte("0.693"), <-done)
}

func TestDuplicateTagIsProtocolError(t *testing.T) {
	a, b := Pair()
	defer a.Close()

	tag := NewTag("wa", 1, 0)
	require.NoError(t, a.Send(tag, []byte("x")))
	require.Error(t, a.Send(tag, []byte("y")))

	// same tag from the other direction is a distinct variable
	require.NoError(t, b.Send(tag, []byte("z")))
}

func TestTagsDisambiguateConcurrentVariables(t *testing.T) {
	a, b := Pair()
	defer a.Close()

	require.NoError(t, a.Send(NewTag("wb", 0, 0), []byte("e0")))
	require.NoError(t, a.Send(NewTag("wb", 1, 0), []byte("e1")))
	require.NoError(t, a.Send(NewTag("wa", 0, 0), []byte("other")))

	got, err := b.Recv(NewTag("wb", 1, 0))
	require.NoError(t, err)
	require.Equal(t, []byte("e1"), got)

	got, err = b.Recv(NewTag("wb", 0, 0))
	require.NoError(t, err)
	require.Equal(t, []byte("e0"), got)
}

func TestCloseUnblocksRecv(t *testing.T) {
	a, b := Pair()

	errC := make(chan error)
	go func() {
		_, err := b.Recv(NewTag("never", 0, 0))
		errC <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())
	require.Error(t, <-errC)
}

func TestJSONRoundTrip(t *testing.T) {
	a, b := Pair()
	defer a.Close()

	type status struct {
		Converged bool
		Stopped   bool
	}
	tag := NewTag("train_status", 2, 0)
	require.NoError(t, SendJSON(a, tag, &status{Converged: true}))

	var got status
	require.NoError(t, RecvJSON(b, tag, &got))
	require.True(t, got.Converged)
	require.False(t, got.Stopped)
}
