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
	"sort"
	"time"

	"github.com/mus-format/mus-go/varint"
)

// Hand-maintained MUS serializers for every value persisted in the KV
// service. Strings carry a varint length prefix, timestamps are Unix
// microseconds, maps are written in sorted key order so identical values
// serialize to identical bytes.

// StringMUS serializes strings with a varint length prefix.
var StringMUS = stringMUS{}

type stringMUS struct{}

func (stringMUS) Marshal(v string, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	return n + copy(bs[n:], v)
}

func (stringMUS) Unmarshal(bs []byte) (v string, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return "", n, err
	}
	if uint64(len(bs)-n) < length {
		return "", n, ErrShortBuffer
	}
	end := n + int(length)
	return string(bs[n:end]), end, nil
}

func (stringMUS) Size(v string) int {
	return varint.Uint64.Size(uint64(len(v))) + len(v)
}

// TimeMUS serializes timestamps as Unix microseconds.
var TimeMUS = timeMUS{}

type timeMUS struct{}

func (timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	return varint.Int64.Marshal(v.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func (timeMUS) Size(v time.Time) int {
	return varint.Int64.Size(v.UnixMicro())
}

// Float32SliceMUS serializes embedding vectors.
var Float32SliceMUS = float32SliceMUS{}

type float32SliceMUS struct{}

func (float32SliceMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += varint.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (float32SliceMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	for i := range v {
		var m int
		v[i], m, err = varint.Float32.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (float32SliceMUS) Size(v []float32) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += varint.Float32.Size(f)
	}
	return size
}

// StringMapMUS serializes metadata maps in sorted key order.
var StringMapMUS = stringMapMUS{}

type stringMapMUS struct{}

func (stringMapMUS) Marshal(v map[string]string, bs []byte) (n int) {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	n = varint.Uint64.Marshal(uint64(len(keys)), bs)
	for _, k := range keys {
		n += StringMUS.Marshal(k, bs[n:])
		n += StringMUS.Marshal(v[k], bs[n:])
	}
	return n
}

func (stringMapMUS) Unmarshal(bs []byte) (v map[string]string, n int, err error) {
	count, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if count == 0 {
		return nil, n, nil
	}
	v = make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		var key, val string
		var m int
		key, m, err = StringMUS.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		val, m, err = StringMUS.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		v[key] = val
	}
	return v, n, nil
}

func (stringMapMUS) Size(v map[string]string) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for k, val := range v {
		size += StringMUS.Size(k) + StringMUS.Size(val)
	}
	return size
}

// CheckpointMUS serializes indexing checkpoints.
var CheckpointMUS = checkpointMUS{}

type checkpointMUS struct{}

func (checkpointMUS) Marshal(v Checkpoint, bs []byte) (n int) {
	n = StringMUS.Marshal(string(v.Kind), bs)
	n += varint.Uint64.Marshal(v.Version, bs[n:])
	n += varint.Int64.Marshal(v.NextOffset, bs[n:])
	n += varint.Int64.Marshal(v.Processed, bs[n:])
	n += varint.Int64.Marshal(v.Total, bs[n:])
	n += varint.Int64.Marshal(int64(v.Status), bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (checkpointMUS) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	var m int
	var kind string
	kind, n, err = StringMUS.Unmarshal(bs)
	if err != nil {
		return v, n, err
	}
	v.Kind = Kind(kind)
	v.Version, m, err = varint.Uint64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.NextOffset, m, err = varint.Int64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Processed, m, err = varint.Int64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Total, m, err = varint.Int64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	var status int64
	status, m, err = varint.Int64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Status = CheckpointStatus(status)
	v.UpdatedAt, m, err = TimeMUS.Unmarshal(bs[n:])
	n += m
	return v, n, err
}

func (checkpointMUS) Size(v Checkpoint) (size int) {
	size = StringMUS.Size(string(v.Kind))
	size += varint.Uint64.Size(v.Version)
	size += varint.Int64.Size(v.NextOffset)
	size += varint.Int64.Size(v.Processed)
	size += varint.Int64.Size(v.Total)
	size += varint.Int64.Size(int64(v.Status))
	size += TimeMUS.Size(v.UpdatedAt)
	return size
}

// SearchMatchMUS serializes one resolved search hit.
var SearchMatchMUS = searchMatchMUS{}

type searchMatchMUS struct{}

func (searchMatchMUS) Marshal(v SearchMatch, bs []byte) (n int) {
	n = varint.Int64.Marshal(int64(v.RecordId), bs)
	n += StringMUS.Marshal(string(v.Kind), bs[n:])
	n += StringMUS.Marshal(v.Name, bs[n:])
	n += StringMUS.Marshal(v.Category, bs[n:])
	n += StringMUS.Marshal(v.Summary, bs[n:])
	n += varint.Float32.Marshal(v.Score, bs[n:])
	n += StringMUS.Marshal(v.Source, bs[n:])
	return n
}

func (searchMatchMUS) Unmarshal(bs []byte) (v SearchMatch, n int, err error) {
	var m int
	var id int64
	id, n, err = varint.Int64.Unmarshal(bs)
	if err != nil {
		return v, n, err
	}
	v.RecordId = ID(id)
	var kind string
	kind, m, err = StringMUS.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Kind = Kind(kind)
	v.Name, m, err = StringMUS.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Category, m, err = StringMUS.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Summary, m, err = StringMUS.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Score, m, err = varint.Float32.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	v.Source, m, err = StringMUS.Unmarshal(bs[n:])
	n += m
	return v, n, err
}

func (searchMatchMUS) Size(v SearchMatch) (size int) {
	size = varint.Int64.Size(int64(v.RecordId))
	size += StringMUS.Size(string(v.Kind))
	size += StringMUS.Size(v.Name)
	size += StringMUS.Size(v.Category)
	size += StringMUS.Size(v.Summary)
	size += varint.Float32.Size(v.Score)
	size += StringMUS.Size(v.Source)
	return size
}

// CachedResultMUS serializes cached query results.
var CachedResultMUS = cachedResultMUS{}

type cachedResultMUS struct{}

func (cachedResultMUS) Marshal(v CachedResult, bs []byte) (n int) {
	n = StringMUS.Marshal(v.Query, bs)
	n += varint.Uint64.Marshal(uint64(len(v.Matches)), bs[n:])
	for _, match := range v.Matches {
		n += SearchMatchMUS.Marshal(match, bs[n:])
	}
	n += TimeMUS.Marshal(v.CreatedAt, bs[n:])
	return n
}

func (cachedResultMUS) Unmarshal(bs []byte) (v CachedResult, n int, err error) {
	var m int
	v.Query, n, err = StringMUS.Unmarshal(bs)
	if err != nil {
		return v, n, err
	}
	var count uint64
	count, m, err = varint.Uint64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return v, n, err
	}
	if count > 0 {
		v.Matches = make([]SearchMatch, count)
		for i := range v.Matches {
			v.Matches[i], m, err = SearchMatchMUS.Unmarshal(bs[n:])
			n += m
			if err != nil {
				return v, n, err
			}
		}
	}
	v.CreatedAt, m, err = TimeMUS.Unmarshal(bs[n:])
	n += m
	return v, n, err
}

func (cachedResultMUS) Size(v CachedResult) (size int) {
	size = StringMUS.Size(v.Query)
	size += varint.Uint64.Size(uint64(len(v.Matches)))
	for _, match := range v.Matches {
		size += SearchMatchMUS.Size(match)
	}
	size += TimeMUS.Size(v.CreatedAt)
	return size
}
