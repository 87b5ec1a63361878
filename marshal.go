package xmlrpc

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Marshaler is implemented by types which convert themselves into a Value.
type Marshaler interface {
	ToValue() (Value, error)
}

// Union marks a struct type as tagged union when embedded. All other fields
// of the struct must be pointers and exactly one of them must be set. The
// union encodes as struct with a single member, the field name selects the
// variant. A variant of type *struct{} encodes as empty struct, a pointer to
// a slice or fixed size array as array, any other pointer transparently as
// the value it points to.
type Union struct{}

var (
	marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()
	valueType     = reflect.TypeOf((*Value)(nil)).Elem()
	timeType      = reflect.TypeOf(time.Time{})
	unionType     = reflect.TypeOf(Union{})
)

// ToValue encodes a native value into a Value. Fixed width integers up to 32
// bit map to Int. 64 bit and unsigned 32 bit integers map to their decimal
// representation as String, the wire int is a signed 32 bit quantity and
// larger magnitudes would silently truncate. int and uint map to Int when the
// value fits. A nil pointer encodes as empty array, a valid pointer as array
// with the pointed-to value as single element. Map keys must encode to
// boolean, int, double or string and become the stringified member names of a
// struct, sorted for a deterministic output. Struct fields can be renamed
// with the tag `xmlrpc:"name"` and skipped with `xmlrpc:"-"`.
func ToValue(in interface{}) (Value, error) {
	if in == nil {
		return nil, errors.New("Cannot encode nil")
	}
	return encodeValueOf(reflect.ValueOf(in))
}

func encodeValueOf(rv reflect.Value) (Value, error) {
	t := rv.Type()
	// pointers stay options, the pointee passes these checks after
	// dereferencing
	if t.Implements(valueType) && t.Kind() != reflect.Ptr {
		if v, ok := rv.Interface().(Value); ok && v != nil {
			return v, nil
		}
	}
	if t.Implements(marshalerType) && t.Kind() != reflect.Ptr {
		return rv.Interface().(Marshaler).ToValue()
	}
	if rv.CanAddr() && reflect.PtrTo(t).Implements(marshalerType) {
		return rv.Addr().Interface().(Marshaler).ToValue()
	}
	if t == timeType {
		return DateTime{rv.Interface().(time.Time)}, nil
	}
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Int(rv.Int()), nil
	case reflect.Int64:
		return String(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Int:
		i := rv.Int()
		if i < math.MinInt32 || i > math.MaxInt32 {
			return String(strconv.FormatInt(i, 10)), nil
		}
		return Int(i), nil
	case reflect.Uint8, reflect.Uint16:
		return Int(rv.Uint()), nil
	case reflect.Uint32, reflect.Uint64:
		return String(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Uint:
		u := rv.Uint()
		if u > math.MaxInt32 {
			return String(strconv.FormatUint(u, 10)), nil
		}
		return Int(u), nil
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return Base64(b), nil
		}
		return encodeSlice(rv)
	case reflect.Array:
		return encodeSlice(rv)
	case reflect.Map:
		return encodeMap(rv)
	case reflect.Struct:
		if isUnion(t) {
			return encodeUnion(rv)
		}
		st := Struct{}
		if err := encodeMembers(rv, &st); err != nil {
			return nil, err
		}
		return st, nil
	case reflect.Ptr:
		// a pointer is an optional value
		if rv.IsNil() {
			return Array{}, nil
		}
		v, err := encodeValueOf(rv.Elem())
		if err != nil {
			return nil, err
		}
		return Array{v}, nil
	case reflect.Interface:
		if rv.IsNil() {
			return nil, errors.New("Cannot encode nil")
		}
		return encodeValueOf(rv.Elem())
	}
	return nil, fmt.Errorf("Cannot encode type %s", t)
}

func encodeSlice(rv reflect.Value) (Value, error) {
	arr := make(Array, rv.Len())
	for i := range arr {
		v, err := encodeValueOf(rv.Index(i))
		if err != nil {
			return nil, fmt.Errorf("Cannot encode element %d: %w", i, err)
		}
		arr[i] = v
	}
	return arr, nil
}

func encodeMap(rv reflect.Value) (Value, error) {
	st := make(Struct, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		kv, err := encodeValueOf(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("Cannot encode map key: %w", err)
		}
		name, err := memberName(kv)
		if err != nil {
			return nil, err
		}
		v, err := encodeValueOf(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("Cannot encode map member %s: %w", name, err)
		}
		st = append(st, Member{Name: name, Value: v})
	}
	// map iteration order is random
	sort.SliceStable(st, func(i, j int) bool { return st[i].Name < st[j].Name })
	return st, nil
}

// memberName turns an encoded map key into a struct member name.
func memberName(v Value) (string, error) {
	switch kv := v.(type) {
	case Bool:
		if kv {
			return "true", nil
		}
		return "false", nil
	case Int:
		return strconv.FormatInt(int64(kv), 10), nil
	case Double:
		return formatDouble(float64(kv)), nil
	case String:
		return string(kv), nil
	}
	return "", fmt.Errorf("Unsupported map key type: %s", kindOf(v))
}

func encodeMembers(rv reflect.Value, st *Struct) error {
	for _, ref := range dominantFields(rv.Type()) {
		v, err := encodeValueOf(rv.FieldByIndex(ref.index))
		if err != nil {
			return fmt.Errorf("Cannot encode field %s: %w", ref.name, err)
		}
		*st = append(*st, Member{Name: ref.name, Value: v})
	}
	return nil
}

type fieldRef struct {
	name  string
	index []int
	depth int
}

func collectFields(t reflect.Type, prefix []int, depth int, refs *[]fieldRef) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			// unexported
			continue
		}
		name, skip := fieldName(f)
		if skip {
			continue
		}
		idx := append(append([]int(nil), prefix...), i)
		if flattenField(f) {
			collectFields(f.Type, idx, depth+1, refs)
			continue
		}
		*refs = append(*refs, fieldRef{name: name, index: idx, depth: depth})
	}
}

// dominantFields resolves name collisions between a field of a struct and
// fields promoted from embedded structs. The field at the shallowest
// embedding depth wins, a tie suppresses the name entirely.
func dominantFields(t reflect.Type) []fieldRef {
	var refs []fieldRef
	collectFields(t, nil, 0, &refs)
	minDepth := make(map[string]int, len(refs))
	tied := make(map[string]bool, len(refs))
	for _, ref := range refs {
		d, ok := minDepth[ref.name]
		switch {
		case !ok || ref.depth < d:
			minDepth[ref.name] = ref.depth
			tied[ref.name] = false
		case ref.depth == d:
			tied[ref.name] = true
		}
	}
	out := make([]fieldRef, 0, len(refs))
	for _, ref := range refs {
		if ref.depth == minDepth[ref.name] && !tied[ref.name] {
			out = append(out, ref)
		}
	}
	return out
}

// flattenField reports whether an embedded struct field contributes its
// members directly.
func flattenField(f reflect.StructField) bool {
	return f.Anonymous && f.Type.Kind() == reflect.Struct &&
		f.Type != timeType && !f.Type.Implements(marshalerType) &&
		f.Tag.Get("xmlrpc") == ""
}

func fieldName(f reflect.StructField) (name string, skip bool) {
	tag := f.Tag.Get("xmlrpc")
	if tag == "-" {
		return "", true
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return f.Name, false
	}
	return tag, false
}

func isUnion(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == unionType {
			return true
		}
	}
	return false
}

func encodeUnion(rv reflect.Value) (Value, error) {
	t := rv.Type()
	var name string
	var inner reflect.Value
	found := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == unionType {
			continue
		}
		if f.PkgPath != "" {
			continue
		}
		n, skip := fieldName(f)
		if skip {
			continue
		}
		if f.Type.Kind() != reflect.Ptr {
			return nil, fmt.Errorf("Union variant %s.%s must be a pointer", t, f.Name)
		}
		fv := rv.Field(i)
		if fv.IsNil() {
			continue
		}
		if found {
			return nil, fmt.Errorf("Multiple variants set in union %s", t)
		}
		found = true
		name = n
		inner = fv.Elem()
	}
	if !found {
		return nil, fmt.Errorf("No variant set in union %s", t)
	}
	v, err := encodeValueOf(inner)
	if err != nil {
		return nil, fmt.Errorf("Cannot encode variant %s: %w", name, err)
	}
	return Struct{{Name: name, Value: v}}, nil
}
