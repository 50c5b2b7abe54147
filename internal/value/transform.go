// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package value

// StringMapper is a Visitor that rewrites every string leaf with Fn and
// rebuilds containers with the same shape. Numbers, booleans, nulls and
// opaque leaves are returned as-is.
type StringMapper struct {
	Fn func(string) string
}

var _ Visitor = StringMapper{}

func (m StringMapper) VisitString(s String) Value { return String(m.Fn(string(s))) }
func (m StringMapper) VisitNumber(n Number) Value { return n }
func (m StringMapper) VisitBool(b Bool) Value     { return b }
func (m StringMapper) VisitNull(n Null) Value     { return n }
func (m StringMapper) VisitOpaque(o Opaque) Value { return o }

func (m StringMapper) VisitObject(o Object) Value {
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v.Accept(m)
	}
	return out
}

func (m StringMapper) VisitArray(a Array) Value {
	out := make(Array, len(a))
	for i, v := range a {
		out[i] = v.Accept(m)
	}
	return out
}

// MapStrings applies fn to every string leaf of v.
func MapStrings(v Value, fn func(string) string) Value {
	if v == nil {
		return Null{}
	}
	return v.Accept(StringMapper{Fn: fn})
}
