package xmlrpc

import (
	"errors"
	"fmt"
	"time"
)

// Query helps to extract values from a value tree. Accessors can be chained,
// the first encountered error is latched and can be checked once at the end
// with Err.
type Query struct {
	value Value
	err   *error
	// faster lookup for structs
	lookup map[string]*Query
	// cache arrays
	array []*Query
}

// Q creates a new Query for the specified value.
func Q(v Value) *Query {
	var err error
	return &Query{value: v, err: &err}
}

// Err returns the first encountered error.
func (q *Query) Err() error {
	return *q.err
}

// Int gets an XML-RPC i4/int value.
func (q *Query) Int() int {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return 0
	}
	i, ok := q.value.(Int)
	if !ok {
		*q.err = errors.New("Not an int")
		return 0
	}
	return int(i)
}

// Bool gets an XML-RPC boolean value.
func (q *Query) Bool() bool {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return false
	}
	b, ok := q.value.(Bool)
	if !ok {
		*q.err = errors.New("Not a bool")
		return false
	}
	return bool(b)
}

// String gets an XML-RPC string value. An empty optional is interpreted as
// empty string.
func (q *Query) String() string {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return ""
	}
	s, ok := q.value.(String)
	if !ok {
		*q.err = errors.New("Not a string")
		return ""
	}
	return string(s)
}

// Float64 gets an XML-RPC double value.
func (q *Query) Float64() float64 {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return 0
	}
	d, ok := q.value.(Double)
	if !ok {
		*q.err = errors.New("Not a double")
		return 0
	}
	return float64(d)
}

// Time gets an XML-RPC dateTime.iso8601 value.
func (q *Query) Time() time.Time {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return time.Time{}
	}
	t, ok := q.value.(DateTime)
	if !ok {
		*q.err = errors.New("Not a dateTime")
		return time.Time{}
	}
	return t.Time
}

// Bytes gets an XML-RPC base64 value.
func (q *Query) Bytes() []byte {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return nil
	}
	b, ok := q.value.(Base64)
	if !ok {
		*q.err = errors.New("Not a base64")
		return nil
	}
	return []byte(b)
}

// IsEmpty returns true, if there is no previous error and the value is empty.
// An empty value can also be interpreted as an empty string.
func (q *Query) IsEmpty() bool {
	// previous error?
	if q.Err() != nil {
		return false
	}
	// empty optional?
	if q.value == nil {
		return true
	}
	s, ok := q.value.(String)
	return ok && s == ""
}

// IsNotEmpty returns true, if there is no previous error and the value is not
// empty. An empty value can also be interpreted as an empty string.
func (q *Query) IsNotEmpty() bool {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return false
	}
	s, ok := q.value.(String)
	return !ok || s != ""
}

// Any returns data type int, bool, float64, string, time.Time, []byte or nil
// for an empty optional.
func (q *Query) Any() interface{} {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		return nil
	}
	switch v := q.value.(type) {
	case Int:
		return int(v)
	case Bool:
		return bool(v)
	case Double:
		return float64(v)
	case String:
		return string(v)
	case DateTime:
		return v.Time
	case Base64:
		return []byte(v)
	}
	*q.err = errors.New("Not a scalar value")
	return nil
}

// Map returns all members of an XML-RPC struct. Repeated members overwrite
// earlier ones.
func (q *Query) Map() map[string]*Query {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		// return empty map
		return nil
	}
	// is map already created?
	if q.lookup != nil {
		return q.lookup
	}
	// create map
	st, ok := q.value.(Struct)
	if !ok {
		*q.err = errors.New("Not a struct")
		return nil
	}
	q.lookup = make(map[string]*Query)
	for _, m := range st {
		q.lookup[m.Name] = &Query{value: m.Value, err: q.err}
	}
	return q.lookup
}

// key gets the specified member from a struct.
func (q *Query) key(name string, must bool) *Query {
	m := q.Map()
	// previous error?
	if q.Err() != nil {
		return &Query{err: q.err}
	}
	// lookup
	f, ok := m[name]
	if !ok {
		if must {
			*q.err = fmt.Errorf("Field not found: %s", name)
		}
		return &Query{err: q.err}
	}
	return f
}

// Key sets an error, if the specified member is missing.
func (q *Query) Key(name string) *Query {
	return q.key(name, true)
}

// TryKey does not set an error, if the specified member is missing.
func (q *Query) TryKey(name string) *Query {
	return q.key(name, false)
}

// Slice returns all array elements.
func (q *Query) Slice() []*Query {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		// return empty slice
		return nil
	}
	// array already created?
	if q.array != nil {
		return q.array
	}
	// create array
	arr, ok := q.value.(Array)
	if !ok {
		*q.err = errors.New("Not an array")
		return nil
	}
	q.array = make([]*Query, len(arr))
	for i, v := range arr {
		q.array[i] = &Query{value: v, err: q.err}
	}
	return q.array
}

// Strings returns a string array.
func (q *Query) Strings() []string {
	// previous error or empty optional?
	if q.Err() != nil || q.value == nil {
		// return empty slice
		return nil
	}
	// create array
	var r []string
	s := q.Slice()
	for _, e := range s {
		r = append(r, e.String())
	}
	if q.Err() != nil {
		// return empty slice
		return nil
	}
	return r
}

// Idx returns the array element at i.
func (q *Query) Idx(i int) *Query {
	s := q.Slice()
	// previous error
	if q.Err() != nil {
		return &Query{err: q.err}
	}
	// check bounds
	if i < 0 || i >= len(s) {
		*q.err = fmt.Errorf("Index out of bounds (array length: %d): %d", len(s), i)
		return &Query{err: q.err}
	}
	return s[i]
}

// Value returns the wrapped value.
func (q *Query) Value() Value {
	return q.value
}
