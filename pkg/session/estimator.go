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

package session

import (
	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts approximate tokens in text. Estimates drive the
// compaction trigger only; billing comes from provider-reported usage.
type Estimator interface {
	Count(text string) int
}

// CharEstimator is the default heuristic: 4 chars per token.
type CharEstimator struct{}

func (CharEstimator) Count(text string) int {
	return len(text) / 4
}

// TiktokenEstimator counts tokens with a real tokenizer. Slower than
// CharEstimator but exact for OpenAI-compatible models.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator creates an estimator for the given encoding
// (e.g. "cl100k_base").
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (e *TiktokenEstimator) Count(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

var (
	_ Estimator = CharEstimator{}
	_ Estimator = (*TiktokenEstimator)(nil)
)
