// Package document implements the structural value model that flows through
// the query pipeline: null, bool, number, string, array and object values,
// plus the undefined value used for absent properties.
package document

import (
	"math"
)

// Kind identifies the type of a [Value].
type Kind uint8

// Kinds are declared in their cross-type sort order.
const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "bool",
	KindNumber:    "number",
	KindString:    "string",
	KindArray:     "array",
	KindObject:    "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Value is an immutable structural value. The zero Value is undefined.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  *Object
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value. Negative zero is normalized to zero so
// that equal numbers always hash identically.
func Number(f float64) Value {
	if f == 0 {
		f = 0
	}
	return Value{kind: KindNumber, num: f}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array returns an array value holding vs. The slice is retained.
func Array(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindArray, arr: vs}
}

// FromObject wraps an object as a value. A nil object becomes an empty object.
func FromObject(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether v is undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Number returns the number held by v.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the string held by v.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Array returns the elements held by v. Callers must not modify the result.
func (v Value) Array() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Object returns the object held by v.
func (v Value) Object() (*Object, bool) { return v.obj, v.kind == KindObject }

// Get returns the named property when v is an object, and undefined otherwise.
func (v Value) Get(name string) Value {
	if v.kind != KindObject {
		return Undefined()
	}
	val, _ := v.obj.Get(name)
	return val
}

func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(b)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
