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


package kvfallback

import (
	"fmt"

	"github.com/poiesic/semsearch/core"
)

// storedVector is the value half of a fallback entry. The record id
// lives in the key, so only the embedding and metadata are stored.
type storedVector struct {
	Embedding []float32
	Metadata  map[string]string
}

func marshalStoredVector(v storedVector) []byte {
	bs := make([]byte, core.Float32SliceMUS.Size(v.Embedding)+core.StringMapMUS.Size(v.Metadata))
	n := core.Float32SliceMUS.Marshal(v.Embedding, bs)
	core.StringMapMUS.Marshal(v.Metadata, bs[n:])
	return bs
}

func unmarshalStoredVector(bs []byte) (storedVector, error) {
	var v storedVector
	embedding, n, err := core.Float32SliceMUS.Unmarshal(bs)
	if err != nil {
		return v, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	metadata, _, err := core.StringMapMUS.Unmarshal(bs[n:])
	if err != nil {
		return v, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	v.Embedding = embedding
	v.Metadata = metadata
	return v, nil
}
