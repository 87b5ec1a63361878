// Package xmlrpc implements the XML-RPC wire protocol: a dynamic value model,
// an XML codec for the methodCall/methodResponse envelope, and a typed
// encoder/decoder which bridges application types and the value model.
package xmlrpc

import (
	"bytes"
	"time"
)

// Value represents an XML-RPC value. It is a closed union: the only
// implementations are Int, Bool, String, Double, DateTime, Base64, Array and
// Struct.
type Value interface {
	isValue()
}

// Int represents an XML-RPC i4/int value (32 bit signed).
type Int int32

// Bool represents an XML-RPC boolean value.
type Bool bool

// String represents an XML-RPC string value.
type String string

// Double represents an XML-RPC double value (64 bit float).
type Double float64

// DateTime represents an XML-RPC dateTime.iso8601 value.
type DateTime struct {
	time.Time
}

// Base64 represents an XML-RPC base64 value (raw bytes).
type Base64 []byte

// Array represents an XML-RPC array value.
type Array []Value

// Struct represents an XML-RPC struct value. Member order and duplicate
// member names are preserved as encountered. Consumers needing map semantics
// fold the members themselves, e.g. with Query.Map.
type Struct []Member

// Member is a single member of a Struct.
type Member struct {
	Name  string
	Value Value
}

func (Int) isValue()      {}
func (Bool) isValue()     {}
func (String) isValue()   {}
func (Double) isValue()   {}
func (DateTime) isValue() {}
func (Base64) isValue()   {}
func (Array) isValue()    {}
func (Struct) isValue()   {}

// NewDateTime creates a DateTime value from a time.Time.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t}
}

// Params holds the ordered parameters of a method call or the payload of a
// successful method response.
type Params []Value

// Equal reports whether two values are structurally equal. Double values are
// compared with IEEE equality, so NaN is not equal to NaN. DateTime values
// are compared as instants.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Double:
		bv, ok := b.(Double)
		return ok && av == bv
	case DateTime:
		bv, ok := b.(DateTime)
		return ok && av.Time.Equal(bv.Time)
	case Base64:
		bv, ok := b.(Base64)
		return ok && bytes.Equal(av, bv)
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Struct:
		bv, ok := b.(Struct)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Name != bv[i].Name || !Equal(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// kindOf names the variant of a value for error messages.
func kindOf(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Int:
		return "int"
	case Bool:
		return "boolean"
	case String:
		return "string"
	case Double:
		return "double"
	case DateTime:
		return "dateTime"
	case Base64:
		return "base64"
	case Array:
		return "array"
	case Struct:
		return "struct"
	}
	return "unknown"
}
