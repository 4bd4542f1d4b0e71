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

package errcodes

// error code list
const (
	// 00xx common error
	ErrCodeInternal = "SL0001" // internal error
	ErrCodeParam    = "SL0002" // parameters error
	ErrCodeConfig   = "SL0003" // configuration error
	ErrCodeNotFound = "SL0004" // target not found
	ErrCodeEncoding = "SL0005" // encoding error

	// secure training errors
	ErrCodeTransfer          = "SL0011" // transfer channel misuse, duplicate or unmatched tag
	ErrCodeProtocolViolation = "SL0012" // disclosure policy would be violated, aborted before any exchange
	ErrCodeUnimplemented     = "SL0013" // secure-arithmetic variant did not supply an operation
	ErrCodeUnknownStrategy   = "SL0014" // unrecognized review strategy reached execution
	ErrCodeFieldMismatch     = "SL0015" // parties disagree on field modulus or precision
)
