package xmlrpc

import "fmt"

// Call represents an XML-RPC method call with method name and ordered
// parameters.
type Call struct {
	Method string
	Params Params
}

// Response represents an XML-RPC method response. Either Params carries the
// success payload or Fault is set, never both.
type Response struct {
	Params Params
	Fault  *Fault
}

// Fault represents an XML-RPC fault response. Fault implements the error
// interface, so it can travel through error returns of method handlers and
// callers.
type Fault struct {
	Code    int32
	Message string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("RPC fault (code: %d, message: %s)", f.Code, f.Message)
}

// newFaultResponse builds a fault response from an error. A *Fault is taken
// over unchanged, any other error is reported with code -1.
func newFaultResponse(err error) *Response {
	if fault, ok := err.(*Fault); ok {
		return &Response{Fault: fault}
	}
	return &Response{Fault: &Fault{Code: -1, Message: err.Error()}}
}

// ToParams encodes a native value into a parameter list. An encoded array
// spreads its elements over the parameters, any other value becomes a single
// parameter. A single scalar argument and a tuple of arguments both map
// naturally onto the parameter list this way.
func ToParams(in interface{}) (Params, error) {
	if in == nil {
		return nil, nil
	}
	v, err := ToValue(in)
	if err != nil {
		return nil, err
	}
	if arr, ok := v.(Array); ok {
		return Params(arr), nil
	}
	return Params{v}, nil
}

// FromParams decodes a parameter list into a native value, inverse to
// ToParams. A single parameter is decoded directly, any other number of
// parameters is decoded as array.
func FromParams(params Params, out interface{}) error {
	if len(params) == 1 {
		return FromValue(params[0], out)
	}
	return FromValue(Array(params), out)
}
