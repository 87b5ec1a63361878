package xmlrpc

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Unmarshaler is implemented by types which read themselves from a value
// tree. Errors are latched in the Query and collected afterwards.
type Unmarshaler interface {
	ReadFrom(q *Query)
}

var unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()

// FromValue decodes a value tree into a native value. out must be a non-nil
// pointer. The decode is driven by the target type: integer targets accept
// Int or a String holding a decimal number, float targets accept Double or a
// String, bool targets accept Bool or the Strings "true" and "false". String
// targets accept String only, byte slices accept Base64 only, time.Time
// accepts DateTime only. A pointer target is an optional value and accepts an
// array of length 0 or 1. Fixed size array targets require the exact element
// count. Struct targets require a member for every exported field, unknown
// members are ignored.
func FromValue(v Value, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("Decode target must be a non-nil pointer")
	}
	return decodeValue(v, rv.Elem())
}

func decodeValue(v Value, rv reflect.Value) error {
	if v == nil {
		return errors.New("Cannot decode nil value")
	}
	t := rv.Type()
	// raw value targets get the tree untouched, pointers to them stay options
	if t.Implements(valueType) && t.Kind() != reflect.Ptr {
		if t.Kind() != reflect.Interface && reflect.TypeOf(v) != t {
			return invalidTypeError(v, kindOf(reflect.Zero(t).Interface().(Value)))
		}
		rv.Set(reflect.ValueOf(v))
		return nil
	}
	if rv.CanAddr() && reflect.PtrTo(t).Implements(unmarshalerType) {
		q := Q(v)
		rv.Addr().Interface().(Unmarshaler).ReadFrom(q)
		return q.Err()
	}
	if t == timeType {
		dt, ok := v.(DateTime)
		if !ok {
			return invalidTypeError(v, "dateTime")
		}
		rv.Set(reflect.ValueOf(dt.Time))
		return nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return decodeBool(v, rv)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decodeInt(v, rv)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decodeUint(v, rv)
	case reflect.Float32, reflect.Float64:
		return decodeFloat(v, rv)
	case reflect.String:
		s, ok := v.(String)
		if !ok {
			return invalidTypeError(v, "string")
		}
		rv.SetString(string(s))
		return nil
	case reflect.Slice:
		return decodeSlice(v, rv)
	case reflect.Array:
		return decodeArray(v, rv)
	case reflect.Map:
		return decodeMap(v, rv)
	case reflect.Struct:
		if isUnion(t) {
			return decodeUnion(v, rv)
		}
		return decodeStruct(v, rv)
	case reflect.Ptr:
		return decodeOption(v, rv)
	case reflect.Interface:
		if t.NumMethod() == 0 {
			rv.Set(reflect.ValueOf(nativeValue(v)))
			return nil
		}
	}
	return fmt.Errorf("Cannot decode into type %s", t)
}

func decodeBool(v Value, rv reflect.Value) error {
	switch tv := v.(type) {
	case Bool:
		rv.SetBool(bool(tv))
		return nil
	case String:
		switch tv {
		case "true":
			rv.SetBool(true)
			return nil
		case "false":
			rv.SetBool(false)
			return nil
		}
	}
	return invalidTypeError(v, "boolean")
}

func decodeInt(v Value, rv reflect.Value) error {
	switch tv := v.(type) {
	case Int:
		i := int64(tv)
		if rv.OverflowInt(i) {
			return fmt.Errorf("Integer value out of range for %s: %d", rv.Type(), i)
		}
		rv.SetInt(i)
		return nil
	case String:
		i, err := strconv.ParseInt(string(tv), 10, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("Invalid integer value: %q", string(tv))
		}
		rv.SetInt(i)
		return nil
	}
	return invalidTypeError(v, "integer")
}

func decodeUint(v Value, rv reflect.Value) error {
	switch tv := v.(type) {
	case Int:
		if tv < 0 {
			return fmt.Errorf("Integer value out of range for %s: %d", rv.Type(), int32(tv))
		}
		u := uint64(tv)
		if rv.OverflowUint(u) {
			return fmt.Errorf("Integer value out of range for %s: %d", rv.Type(), int32(tv))
		}
		rv.SetUint(u)
		return nil
	case String:
		u, err := strconv.ParseUint(string(tv), 10, rv.Type().Bits())
		if err != nil {
			return fmt.Errorf("Invalid integer value: %q", string(tv))
		}
		rv.SetUint(u)
		return nil
	}
	return invalidTypeError(v, "integer")
}

func decodeFloat(v Value, rv reflect.Value) error {
	var f float64
	switch tv := v.(type) {
	case Double:
		f = float64(tv)
	case String:
		var err error
		f, err = parseFloatText(string(tv))
		if err != nil {
			return fmt.Errorf("Invalid float value: %q", string(tv))
		}
	default:
		return invalidTypeError(v, "double")
	}
	if rv.OverflowFloat(f) {
		return fmt.Errorf("Float value out of range for %s", rv.Type())
	}
	rv.SetFloat(f)
	return nil
}

func decodeSlice(v Value, rv reflect.Value) error {
	t := rv.Type()
	if t.Elem().Kind() == reflect.Uint8 {
		b, ok := v.(Base64)
		if !ok {
			return invalidTypeError(v, "base64")
		}
		ns := reflect.MakeSlice(t, len(b), len(b))
		for i, c := range b {
			ns.Index(i).SetUint(uint64(c))
		}
		rv.Set(ns)
		return nil
	}
	arr, ok := v.(Array)
	if !ok {
		return invalidTypeError(v, "array")
	}
	ns := reflect.MakeSlice(t, len(arr), len(arr))
	for i, e := range arr {
		if err := decodeValue(e, ns.Index(i)); err != nil {
			return fmt.Errorf("Invalid element %d: %w", i, err)
		}
	}
	rv.Set(ns)
	return nil
}

func decodeArray(v Value, rv reflect.Value) error {
	arr, ok := v.(Array)
	if !ok {
		return invalidTypeError(v, "array")
	}
	if len(arr) != rv.Len() {
		return fmt.Errorf("Invalid array length: expected %d, found %d", rv.Len(), len(arr))
	}
	for i, e := range arr {
		if err := decodeValue(e, rv.Index(i)); err != nil {
			return fmt.Errorf("Invalid element %d: %w", i, err)
		}
	}
	return nil
}

func decodeMap(v Value, rv reflect.Value) error {
	st, ok := v.(Struct)
	if !ok {
		return invalidTypeError(v, "struct")
	}
	t := rv.Type()
	nm := reflect.MakeMapWithSize(t, len(st))
	for _, m := range st {
		key, err := decodeKey(m.Name, t.Key())
		if err != nil {
			return err
		}
		ev := reflect.New(t.Elem()).Elem()
		if err := decodeValue(m.Value, ev); err != nil {
			return fmt.Errorf("Invalid member %s: %w", m.Name, err)
		}
		// repeated members overwrite earlier ones
		nm.SetMapIndex(key, ev)
	}
	rv.Set(nm)
	return nil
}

// decodeKey parses a struct member name into a map key.
func decodeKey(name string, t reflect.Type) (reflect.Value, error) {
	key := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		key.SetString(name)
	case reflect.Bool:
		switch name {
		case "true":
			key.SetBool(true)
		case "false":
			key.SetBool(false)
		default:
			return reflect.Value{}, fmt.Errorf("Invalid map key %q for %s", name, t)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(name, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("Invalid map key %q for %s", name, t)
		}
		key.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(name, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("Invalid map key %q for %s", name, t)
		}
		key.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := parseFloatText(name)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("Invalid map key %q for %s", name, t)
		}
		key.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("Unsupported map key type: %s", t)
	}
	return key, nil
}

func decodeStruct(v Value, rv reflect.Value) error {
	st, ok := v.(Struct)
	if !ok {
		return invalidTypeError(v, "struct")
	}
	t := rv.Type()
	refs := dominantFields(t)
	if len(refs) == 0 {
		// a struct without fields decodes from an empty struct only
		if len(st) != 0 {
			return fmt.Errorf("Expected empty struct for %s, found %d members", t, len(st))
		}
		return nil
	}
	lookup := make(map[string]fieldRef, len(refs))
	for _, ref := range refs {
		lookup[ref.name] = ref
	}
	seen := make(map[string]bool, len(refs))
	for _, m := range st {
		ref, ok := lookup[m.Name]
		if !ok {
			// unknown members are ignored
			continue
		}
		if err := decodeValue(m.Value, rv.FieldByIndex(ref.index)); err != nil {
			return fmt.Errorf("Invalid member %s: %w", m.Name, err)
		}
		seen[m.Name] = true
	}
	for _, ref := range refs {
		if !seen[ref.name] {
			return fmt.Errorf("Missing field: %s", ref.name)
		}
	}
	return nil
}

func decodeUnion(v Value, rv reflect.Value) error {
	st, ok := v.(Struct)
	if !ok {
		return invalidTypeError(v, "struct")
	}
	if len(st) != 1 {
		return fmt.Errorf("Invalid variant shape: expected struct with exactly one member, found %d", len(st))
	}
	t := rv.Type()
	rv.Set(reflect.Zero(t))
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == unionType {
			continue
		}
		if f.PkgPath != "" {
			continue
		}
		name, skip := fieldName(f)
		if skip || name != st[0].Name {
			continue
		}
		if f.Type.Kind() != reflect.Ptr {
			return fmt.Errorf("Union variant %s.%s must be a pointer", t, f.Name)
		}
		np := reflect.New(f.Type.Elem())
		if err := decodeValue(st[0].Value, np.Elem()); err != nil {
			return fmt.Errorf("Invalid variant %s: %w", name, err)
		}
		rv.Field(i).Set(np)
		return nil
	}
	return fmt.Errorf("Unknown variant: %s", st[0].Name)
}

func decodeOption(v Value, rv reflect.Value) error {
	arr, ok := v.(Array)
	if !ok {
		return invalidTypeError(v, "array")
	}
	t := rv.Type()
	switch len(arr) {
	case 0:
		rv.Set(reflect.Zero(t))
		return nil
	case 1:
		np := reflect.New(t.Elem())
		if err := decodeValue(arr[0], np.Elem()); err != nil {
			return err
		}
		rv.Set(np)
		return nil
	}
	return fmt.Errorf("Invalid array length for optional value: %d", len(arr))
}

// nativeValue converts a value tree into untyped Go data. Structs fold to
// maps, repeated members overwrite earlier ones.
func nativeValue(v Value) interface{} {
	switch tv := v.(type) {
	case Int:
		return int(tv)
	case Bool:
		return bool(tv)
	case String:
		return string(tv)
	case Double:
		return float64(tv)
	case DateTime:
		return tv.Time
	case Base64:
		return []byte(tv)
	case Array:
		arr := make([]interface{}, len(tv))
		for i, e := range tv {
			arr[i] = nativeValue(e)
		}
		return arr
	case Struct:
		m := make(map[string]interface{}, len(tv))
		for _, e := range tv {
			m[e.Name] = nativeValue(e.Value)
		}
		return m
	}
	return nil
}

func invalidTypeError(v Value, expected string) error {
	return fmt.Errorf("Invalid type: %s, expected %s", kindOf(v), expected)
}
