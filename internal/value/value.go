// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package value models decoded JSON as a closed set of variants so that
// structural rewrites (placeholder restoration, redaction of nested tool
// payloads) are written once as visitors instead of ad-hoc type switches.
package value

import (
	"encoding/json"
	"sort"
)

// Value is one node of a JSON-like document. The set of implementations is
// closed: String, Number, Bool, Null, Object, Array and Opaque.
type Value interface {
	// Accept dispatches to the matching Visitor method.
	Accept(v Visitor) Value
	// Any converts the node back into plain Go values (map[string]any,
	// []any, string, ...).
	Any() any

	sealed()
}

// Visitor handles each variant. Implementations return the replacement
// node; returning the argument unchanged is the identity transform.
type Visitor interface {
	VisitString(String) Value
	VisitNumber(Number) Value
	VisitBool(Bool) Value
	VisitNull(Null) Value
	VisitObject(Object) Value
	VisitArray(Array) Value
	VisitOpaque(Opaque) Value
}

type (
	// String is a JSON string.
	String string
	// Bool is a JSON boolean.
	Bool bool
	// Null is JSON null.
	Null struct{}
	// Object is a JSON object. Keys are never rewritten by transforms.
	Object map[string]Value
	// Array is a JSON array.
	Array []Value
)

// Number keeps the numeric value in its original Go type so that an int
// survives a round trip through the tree.
type Number struct{ N any }

// Opaque carries any leaf that has no JSON counterpart. Transforms pass it
// through untouched.
type Opaque struct{ V any }

func (s String) Accept(v Visitor) Value { return v.VisitString(s) }
func (n Number) Accept(v Visitor) Value { return v.VisitNumber(n) }
func (b Bool) Accept(v Visitor) Value   { return v.VisitBool(b) }
func (n Null) Accept(v Visitor) Value   { return v.VisitNull(n) }
func (o Object) Accept(v Visitor) Value { return v.VisitObject(o) }
func (a Array) Accept(v Visitor) Value  { return v.VisitArray(a) }
func (o Opaque) Accept(v Visitor) Value { return v.VisitOpaque(o) }

func (s String) Any() any { return string(s) }
func (n Number) Any() any { return n.N }
func (b Bool) Any() any   { return bool(b) }
func (Null) Any() any     { return nil }
func (o Opaque) Any() any { return o.V }

func (o Object) Any() any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		out[k] = v.Any()
	}
	return out
}

func (a Array) Any() any {
	out := make([]any, len(a))
	for i, v := range a {
		out[i] = v.Any()
	}
	return out
}

func (String) sealed() {}
func (Number) sealed() {}
func (Bool) sealed()   {}
func (Null) sealed()   {}
func (Object) sealed() {}
func (Array) sealed()  {}
func (Opaque) sealed() {}

// Keys returns the object keys in sorted order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromAny lifts a plain Go value into the tree.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null{}
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return Number{N: t}
	case map[string]any:
		o := make(Object, len(t))
		for k, v := range t {
			o[k] = FromAny(v)
		}
		return o
	case map[string]string:
		o := make(Object, len(t))
		for k, v := range t {
			o[k] = String(v)
		}
		return o
	case []any:
		a := make(Array, len(t))
		for i, v := range t {
			a[i] = FromAny(v)
		}
		return a
	case []map[string]any:
		a := make(Array, len(t))
		for i, v := range t {
			a[i] = FromAny(v)
		}
		return a
	case []string:
		a := make(Array, len(t))
		for i, v := range t {
			a[i] = String(v)
		}
		return a
	default:
		return Opaque{V: t}
	}
}

// Parse decodes raw JSON into the tree. Empty input parses as an empty
// object, which is what providers send for argument-less tool calls.
func Parse(raw []byte) (Value, error) {
	if len(raw) == 0 {
		return Object{}, nil
	}
	var x any
	if err := json.Unmarshal(raw, &x); err != nil {
		return nil, err
	}
	return FromAny(x), nil
}
