package xmlrpc

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"golang.org/x/net/html/charset"
)

// The wire model mirrors the XML grammar of the protocol. Values are
// transferred as tagged strings and converted to and from the Value union by
// wireValue and xmlValue.value.
type xmlValue struct {
	XMLName  xml.Name   `xml:"value"`
	I4       *string    `xml:"i4,omitempty"`
	Int      *string    `xml:"int,omitempty"`
	Boolean  *string    `xml:"boolean,omitempty"`
	Str      *string    `xml:"string,omitempty"`
	Flat     string     `xml:",chardata"`
	Double   *string    `xml:"double,omitempty"`
	DateTime *string    `xml:"dateTime.iso8601,omitempty"`
	Base64   *string    `xml:"base64,omitempty"`
	Struct   *xmlStruct `xml:"struct"`
	Array    *xmlArray  `xml:"array"`
	Other    []xmlElem  `xml:",any"`
}

type xmlStruct struct {
	Members []*xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string    `xml:"name"`
	Value *xmlValue `xml:"value"`
}

// The data element is modeled explicitly, so it is also written for an empty
// array.
type xmlArray struct {
	Data xmlData `xml:"data"`
}

type xmlData struct {
	Values []*xmlValue `xml:"value"`
}

type xmlParams struct {
	Param []*xmlParam `xml:"param"`
}

type xmlParam struct {
	Value *xmlValue `xml:"value"`
}

type xmlMethodCall struct {
	XMLName    xml.Name   `xml:"methodCall"`
	MethodName *string    `xml:"methodName"`
	Params     *xmlParams `xml:"params"`
}

type xmlMethodResponse struct {
	XMLName xml.Name   `xml:"methodResponse"`
	Params  *xmlParams `xml:"params"`
	Fault   *xmlFault  `xml:"fault"`
}

type xmlFault struct {
	Value *xmlValue `xml:"value"`
}

// xmlElem catches child elements with an unknown tag.
type xmlElem struct {
	XMLName xml.Name
}

// value converts a decoded wire value into a Value. An element child selects
// the data type. Without an element child the character data is taken as
// string, possibly empty.
func (x *xmlValue) value() (Value, error) {
	if len(x.Other) > 0 {
		return nil, fmt.Errorf("Unsupported value tag: %s", x.Other[0].XMLName.Local)
	}
	switch {
	case x.I4 != nil:
		return parseInt(*x.I4)
	case x.Int != nil:
		return parseInt(*x.Int)
	case x.Boolean != nil:
		return parseBoolean(*x.Boolean)
	case x.Str != nil:
		return String(*x.Str), nil
	case x.Double != nil:
		f, err := parseFloatText(*x.Double)
		if err != nil {
			return nil, err
		}
		return Double(f), nil
	case x.DateTime != nil:
		return parseDateTime(*x.DateTime)
	case x.Base64 != nil:
		b, err := base64.StdEncoding.DecodeString(*x.Base64)
		if err != nil {
			return nil, fmt.Errorf("Invalid base64 value: %v", err)
		}
		return Base64(b), nil
	case x.Struct != nil:
		st := Struct{}
		for _, m := range x.Struct.Members {
			if m.Value == nil {
				// tolerate members without a value
				continue
			}
			v, err := m.Value.value()
			if err != nil {
				return nil, fmt.Errorf("Invalid struct member %s: %w", m.Name, err)
			}
			st = append(st, Member{Name: m.Name, Value: v})
		}
		return st, nil
	case x.Array != nil:
		arr := Array{}
		for i, e := range x.Array.Data.Values {
			v, err := e.value()
			if err != nil {
				return nil, fmt.Errorf("Invalid array element %d: %w", i, err)
			}
			arr = append(arr, v)
		}
		return arr, nil
	}
	return String(x.Flat), nil
}

// wireValue converts a Value into the wire model. A nil value is written as
// empty value element, which decodes back to an empty string.
func wireValue(v Value) *xmlValue {
	x := &xmlValue{}
	switch tv := v.(type) {
	case Int:
		x.I4 = strPtr(strconv.FormatInt(int64(tv), 10))
	case Bool:
		if tv {
			x.Boolean = strPtr("1")
		} else {
			x.Boolean = strPtr("0")
		}
	case String:
		x.Str = strPtr(string(tv))
	case Double:
		x.Double = strPtr(formatDouble(float64(tv)))
	case DateTime:
		x.DateTime = strPtr(tv.Format(time.RFC3339Nano))
	case Base64:
		x.Base64 = strPtr(base64.StdEncoding.EncodeToString(tv))
	case Array:
		data := make([]*xmlValue, len(tv))
		for i, e := range tv {
			data[i] = wireValue(e)
		}
		x.Array = &xmlArray{Data: xmlData{Values: data}}
	case Struct:
		members := make([]*xmlMember, len(tv))
		for i, m := range tv {
			members[i] = &xmlMember{Name: m.Name, Value: wireValue(m.Value)}
		}
		x.Struct = &xmlStruct{Members: members}
	}
	return x
}

func strPtr(s string) *string {
	return &s
}

func parseInt(s string) (Value, error) {
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("Invalid i4/int value: %q", s)
	}
	return Int(i), nil
}

// parseBoolean accepts a small decimal number, nonzero is true.
func parseBoolean(s string) (Value, error) {
	b, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("Invalid boolean value: %q", s)
	}
	return Bool(b != 0), nil
}

// parseFloatText accepts a decimal float literal and the exact spellings inf,
// -inf and NaN which the writer produces.
func parseFloatText(s string) (float64, error) {
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("Invalid double value: %q", s)
	}
	return f, nil
}

func formatDouble(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseDateTime(s string) (Value, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("Invalid dateTime value: %q", s)
	}
	return DateTime{t}, nil
}

// newDecoder creates an XML decoder which also accepts documents with legacy
// character encodings, e.g. ISO-8859-1.
func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// ReadValue reads a single XML-RPC value document.
func ReadValue(r io.Reader) (Value, error) {
	x := &xmlValue{}
	if err := newDecoder(r).Decode(x); err != nil {
		return nil, fmt.Errorf("Decoding of value failed: %w", err)
	}
	return x.value()
}

// ReadCall reads an XML-RPC methodCall document.
func ReadCall(r io.Reader) (*Call, error) {
	x := &xmlMethodCall{}
	if err := newDecoder(r).Decode(x); err != nil {
		return nil, fmt.Errorf("Decoding of method call failed: %w", err)
	}
	if x.MethodName == nil {
		return nil, errors.New("Missing method name in method call")
	}
	params, err := valueParams(x.Params)
	if err != nil {
		return nil, err
	}
	return &Call{Method: *x.MethodName, Params: params}, nil
}

// ReadResponse reads an XML-RPC methodResponse document. A fault response is
// returned in Response.Fault, not as error.
func ReadResponse(r io.Reader) (*Response, error) {
	x := &xmlMethodResponse{}
	if err := newDecoder(r).Decode(x); err != nil {
		return nil, fmt.Errorf("Decoding of method response failed: %w", err)
	}
	if x.Fault != nil {
		if x.Fault.Value == nil {
			return nil, errors.New("Malformed fault response: missing value")
		}
		fv, err := x.Fault.Value.value()
		if err != nil {
			return nil, fmt.Errorf("Decoding of fault failed: %w", err)
		}
		f, err := faultFromValue(fv)
		if err != nil {
			return nil, err
		}
		return &Response{Fault: f}, nil
	}
	params, err := valueParams(x.Params)
	if err != nil {
		return nil, err
	}
	return &Response{Params: params}, nil
}

// valueParams converts wire parameters. A missing params element yields an
// empty parameter list, some peers omit it for calls without arguments.
func valueParams(x *xmlParams) (Params, error) {
	if x == nil {
		return nil, nil
	}
	var params Params
	for i, p := range x.Param {
		if p.Value == nil {
			// tolerate params without a value
			continue
		}
		v, err := p.Value.value()
		if err != nil {
			return nil, fmt.Errorf("Invalid parameter %d: %w", i, err)
		}
		params = append(params, v)
	}
	return params, nil
}

// faultFromValue checks the shape of a fault value: a struct which provides
// faultCode as int and faultString as string. Repeated members overwrite
// earlier ones, additional members are ignored.
func faultFromValue(v Value) (*Fault, error) {
	st, ok := v.(Struct)
	if !ok {
		return nil, fmt.Errorf("Malformed fault response: expected struct, found %s", kindOf(v))
	}
	var codeValue, messageValue Value
	for _, m := range st {
		switch m.Name {
		case "faultCode":
			codeValue = m.Value
		case "faultString":
			messageValue = m.Value
		}
	}
	if codeValue == nil || messageValue == nil {
		return nil, errors.New("Malformed fault response: faultCode or faultString missing")
	}
	code, ok := codeValue.(Int)
	if !ok {
		return nil, fmt.Errorf("Malformed fault response: faultCode must be an int, found %s", kindOf(codeValue))
	}
	message, ok := messageValue.(String)
	if !ok {
		return nil, fmt.Errorf("Malformed fault response: faultString must be a string, found %s", kindOf(messageValue))
	}
	return &Fault{Code: int32(code), Message: string(message)}, nil
}

// writeDeclaration writes the XML declaration. An empty encoding omits the
// encoding attribute, the document is then UTF-8.
func writeDeclaration(w io.Writer, encoding string) error {
	var err error
	if encoding == "" {
		_, err = io.WriteString(w, "<?xml version=\"1.0\"?>\n")
	} else {
		_, err = io.WriteString(w, "<?xml version=\"1.0\" encoding=\""+encoding+"\"?>\n")
	}
	return err
}

func encodeValue(w io.Writer, v Value) error {
	if err := xml.NewEncoder(w).Encode(wireValue(v)); err != nil {
		return fmt.Errorf("Encoding of value failed: %w", err)
	}
	return nil
}

func encodeCall(w io.Writer, c *Call) error {
	x := &xmlMethodCall{
		MethodName: strPtr(c.Method),
		Params:     wireParams(c.Params),
	}
	if err := xml.NewEncoder(w).Encode(x); err != nil {
		return fmt.Errorf("Encoding of method call failed: %w", err)
	}
	return nil
}

func encodeResponse(w io.Writer, r *Response) error {
	x := &xmlMethodResponse{}
	if r.Fault != nil {
		x.Fault = &xmlFault{Value: wireValue(Struct{
			{Name: "faultCode", Value: Int(r.Fault.Code)},
			{Name: "faultString", Value: String(r.Fault.Message)},
		})}
	} else {
		x.Params = wireParams(r.Params)
	}
	if err := xml.NewEncoder(w).Encode(x); err != nil {
		return fmt.Errorf("Encoding of method response failed: %w", err)
	}
	return nil
}

func wireParams(params Params) *xmlParams {
	x := &xmlParams{Param: make([]*xmlParam, len(params))}
	for i, v := range params {
		x.Param[i] = &xmlParam{Value: wireValue(v)}
	}
	return x
}

// WriteValue writes a single value as XML document with declaration.
func WriteValue(w io.Writer, v Value) error {
	if err := writeDeclaration(w, ""); err != nil {
		return err
	}
	return encodeValue(w, v)
}

// WriteCall writes a methodCall document with declaration.
func WriteCall(w io.Writer, c *Call) error {
	if err := writeDeclaration(w, ""); err != nil {
		return err
	}
	return encodeCall(w, c)
}

// WriteResponse writes a methodResponse document with declaration. If Fault
// is set, a fault response is written, otherwise a success response with the
// parameters.
func WriteResponse(w io.Writer, r *Response) error {
	if err := writeDeclaration(w, ""); err != nil {
		return err
	}
	return encodeResponse(w, r)
}
