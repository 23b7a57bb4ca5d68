// Copyright 2025 Poiesic Systems
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


package core

import (
	"fmt"
	"strings"
)

const (
	// DefaultTopK is the match count used when a caller asks for none.
	DefaultTopK = 5
	// MaxTopK bounds the match count a single query may request.
	MaxTopK = 50
)

// ValidateKind validates that a kind names an indexable item type.
func ValidateKind(kind Kind) error {
	switch kind {
	case KindSkill, KindTechnology:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// ParseKind converts a wire string into a Kind.
func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	if err := ValidateKind(kind); err != nil {
		return "", err
	}
	return kind, nil
}

// ValidateQuery validates free-text query input.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// ClampTopK normalizes a requested match count into [1, MaxTopK].
// Zero or negative requests fall back to DefaultTopK.
func ClampTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}
