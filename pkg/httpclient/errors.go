// Copyright 2025 RO Agent Authors
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

package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RetryableError reports a request that failed after the retry budget
// was exhausted.
type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// ParseRetryAfter reads the standard Retry-After header, accepting both
// delay-seconds and HTTP-date forms.
func ParseRetryAfter(h http.Header) RateLimitInfo {
	value := h.Get("Retry-After")
	if value == "" {
		return RateLimitInfo{}
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return RateLimitInfo{RetryAfter: time.Duration(seconds) * time.Second}
	}
	if at, err := http.ParseTime(value); err == nil {
		return RateLimitInfo{ResetTime: at.Unix()}
	}
	return RateLimitInfo{}
}
