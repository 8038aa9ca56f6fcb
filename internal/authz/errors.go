// Copyright 2026 The CyberVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that must map it to a response.
type Kind uint8

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindBadRequest
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to the caller for
// BadRequest and Conflict; Unauthenticated and Forbidden responses use a fixed
// body so that no existence information leaks across tenants.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error. Packages use it to declare sentinels.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Unauthenticated returns an error for a missing or invalid credential.
func Unauthenticated(message string) error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// Forbidden returns an error for a denied action.
func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

// BadRequest returns an error for malformed input.
func BadRequest(message string) error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// Conflict returns an error for a mutation that would break an invariant.
func Conflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

// Internal wraps an unexpected downstream failure.
func Internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the classification of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of a classified error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

var (
	ErrAccessDenied      = NewError(KindForbidden, "access denied")
	ErrSelfMembership    = NewError(KindForbidden, "members cannot disable or remove their own membership")
	ErrLastOwner         = NewError(KindConflict, "organization must keep at least one active owner")
	ErrLastAdministrator = NewError(KindConflict, "organization must keep at least one active administrator")
)
