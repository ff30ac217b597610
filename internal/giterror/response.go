// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package giterror

import (
	"fmt"
	"net/http"
	"strings"
)

// GraphQL error types GitHub reports in the "type" field of an error entry.
const (
	TypeNotFound    = "NOT_FOUND"
	TypeRateLimited = "RATE_LIMITED"
	TypeForbidden   = "FORBIDDEN"
)

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ResponseError describes a failed GraphQL round trip as seen on the wire:
// the HTTP status (0 when the request never produced a response), the error
// entries of the envelope, whether the envelope still carried data, and the
// top-level message GitHub sends instead of an envelope on 403 and 429.
type ResponseError struct {
	Status  int
	Errors  []GraphQLError
	Message string
	HasData bool
	Cause   error
}

// quotaPhrases are the wordings GitHub uses for primary and secondary
// rate limits.
var quotaPhrases = []string{
	"api rate limit exceeded",
	"secondary rate limit",
}

func mentionsQuota(msg string) bool {
	msg = strings.ToLower(msg)
	for _, phrase := range quotaPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	var b strings.Builder
	if e.Status != 0 {
		fmt.Fprintf(&b, "status %d", e.Status)
	} else {
		b.WriteString("no status")
	}
	for i, ge := range e.Errors {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		if ge.Type != "" {
			fmt.Fprintf(&b, "[%s] ", ge.Type)
		}
		b.WriteString(ge.Message)
	}
	if len(e.Errors) == 0 && e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if len(e.Errors) == 0 && e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the transport or decoding error underneath.
func (e *ResponseError) Unwrap() error {
	return e.Cause
}

// IsRateLimitError reports a token quota exhaustion.
func (e *ResponseError) IsRateLimitError() bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	if mentionsQuota(e.Message) {
		return true
	}
	for _, ge := range e.Errors {
		if ge.Type == TypeRateLimited || mentionsQuota(ge.Message) {
			return true
		}
	}
	return false
}

// IsNotFoundError reports that the requested entity does not exist server-side.
func (e *ResponseError) IsNotFoundError() bool {
	for _, ge := range e.Errors {
		if ge.Type == TypeNotFound {
			return true
		}
	}
	return false
}

// IsAuthError reports a rejected or under-privileged token.
func (e *ResponseError) IsAuthError() bool {
	if e.Status == http.StatusUnauthorized {
		return true
	}
	for _, ge := range e.Errors {
		if ge.Type == TypeForbidden {
			return true
		}
	}
	return false
}
