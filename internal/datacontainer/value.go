// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package datacontainer provides hierarchical JSON key/value storage scoped
// to an account, a save, or a shared common namespace.
//
// Every entry has one of three states: absent, present with a JSON null, or
// present with a JSON value. All drivers report the same state for the same
// sequence of writes.
package datacontainer

import (
	"bytes"
	"encoding/json"

	"github.com/samber/oops"
)

var jsonNull = json.RawMessage("null")

// Value is the tri-state result of reading an entry.
type Value struct {
	present bool
	raw     json.RawMessage
}

// Absent returns a Value for a key that has no entry.
func Absent() Value {
	return Value{}
}

// Null returns a Value for an entry that holds a JSON null.
func Null() Value {
	return Value{present: true, raw: jsonNull}
}

// Of returns a Value holding raw. A nil or empty raw is treated as a JSON null.
func Of(raw json.RawMessage) Value {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Null()
	}
	return Value{present: true, raw: raw}
}

// IsPresent reports whether the entry exists, including entries holding null.
func (v Value) IsPresent() bool {
	return v.present
}

// IsNull reports whether the entry exists and holds a JSON null.
func (v Value) IsNull() bool {
	return v.present && bytes.Equal(bytes.TrimSpace(v.raw), jsonNull)
}

// HasValue reports whether the entry exists and holds a non-null value.
func (v Value) HasValue() bool {
	return v.present && !v.IsNull()
}

// Raw returns the stored JSON, or nil when the entry is absent.
func (v Value) Raw() json.RawMessage {
	if !v.present {
		return nil
	}
	return v.raw
}

// Decode unmarshals the stored JSON into dst.
// Decoding an absent entry returns an ENTRY_ABSENT error.
func (v Value) Decode(dst any) error {
	if !v.present {
		return oops.Code("ENTRY_ABSENT").Errorf("entry is absent")
	}
	if err := json.Unmarshal(v.raw, dst); err != nil {
		return oops.Code("ENTRY_DECODE_FAILED").Wrap(err)
	}
	return nil
}

// Encode marshals v into a raw JSON value suitable for Set.
// A nil v encodes as JSON null.
func Encode(v any) (json.RawMessage, error) {
	if v == nil {
		return jsonNull, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, oops.Code("ENTRY_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}

// normalize makes sure a raw value written by a driver is never empty.
func normalize(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return jsonNull
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
