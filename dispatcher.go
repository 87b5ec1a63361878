package xmlrpc

import (
	"fmt"
	"sync"
)

// Dispatcher dispatches a received XML-RPC call to registered handlers.
type Dispatcher interface {
	AddSystemMethods()
	Handle(name string, m Method)
	HandleFunc(name string, f func(Params) (Value, error))
	HandleUnknownFunc(f func(string, Params) (Value, error))
	Dispatch(method string, params Params) (Value, error)
}

// A Method is dispatched from a Handler.
type Method interface {
	Call(params Params) (Value, error)
}

// MethodFunc is an adapter to use ordinary functions as Method's.
type MethodFunc func(Params) (Value, error)

// Call implements interface Method.
func (m MethodFunc) Call(params Params) (Value, error) {
	return m(params)
}

// BasicDispatcher dispatches an XML-RPC call to a registered function.
type BasicDispatcher struct {
	mutex   sync.RWMutex
	methods map[string]Method
	unknown func(string, Params) (Value, error)
}

// Handle registers a Method.
func (d *BasicDispatcher) Handle(name string, m Method) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.methods == nil {
		d.methods = make(map[string]Method)
	}
	d.methods[name] = m
}

// HandleFunc registers an ordinary function as Method.
func (d *BasicDispatcher) HandleFunc(name string, f func(Params) (Value, error)) {
	d.Handle(name, MethodFunc(f))
}

// HandleUnknownFunc registers an ordinary function to handle unknown method
// names.
func (d *BasicDispatcher) HandleUnknownFunc(f func(string, Params) (Value, error)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.unknown = f
}

// AddSystemMethods adds system.multicall, system.listMethods and
// system.methodHelp.
func (d *BasicDispatcher) AddSystemMethods() {

	// attention: currently if one method fails, the complete multicall fails.
	d.HandleFunc(
		"system.multicall",
		func(params Params) (Value, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("Invalid system.multicall: expected one parameter, got %d", len(params))
			}
			q := Q(params[0])
			calls := q.Slice()
			if q.Err() != nil {
				return nil, fmt.Errorf("Invalid system.multicall: %v", q.Err())
			}
			svrLog.Debugf("Call of method system.multicall with %d elements received", len(calls))
			var results Array
			for _, call := range calls {
				methodName := call.Key("methodName").String()
				callParams := call.Key("params").Slice()
				if q.Err() != nil {
					return nil, fmt.Errorf("Invalid system.multicall: %v", q.Err())
				}
				args := make(Params, len(callParams))
				for i, a := range callParams {
					args[i] = a.Value()
				}
				res, err := d.Dispatch(methodName, args)
				if err != nil {
					return nil, fmt.Errorf("Method %s in system.multicall failed: %v", methodName, err)
				}
				results = append(results, res)
			}
			return results, nil
		},
	)

	d.HandleFunc(
		"system.listMethods",
		func(Params) (Value, error) {
			svrLog.Debug("Call of method system.listMethods received")
			d.mutex.RLock()
			defer d.mutex.RUnlock()

			names := Array{}
			for name := range d.methods {
				names = append(names, String(name))
			}
			return names, nil
		},
	)

	// attention: This implementation returns always an empty string.
	d.HandleFunc(
		"system.methodHelp",
		func(Params) (Value, error) {
			svrLog.Debug("Call of method system.methodHelp received")
			return String(""), nil
		},
	)
}

// Dispatch dispatches a method call to a registered function. An unknown
// method name is answered with fault 404, unless an unknown method handler is
// registered.
func (d *BasicDispatcher) Dispatch(method string, params Params) (Value, error) {
	d.mutex.RLock()
	m, ok := d.methods[method]
	unknown := d.unknown
	d.mutex.RUnlock()

	if !ok {
		if unknown == nil {
			unknown = func(name string, _ Params) (Value, error) {
				return nil, &Fault{Code: 404, Message: "Unknown method: " + name}
			}
		}
		return unknown(method, params)
	}
	return m.Call(params)
}

// Register registers a typed method handler on a dispatcher. The call
// parameters are decoded into P, the handler result is encoded into the
// response value. A parameter decode failure is answered with fault 400, an
// encode failure of the result with fault 500. An error of type *Fault is
// passed through to the caller unchanged.
func Register[P, R any](d Dispatcher, name string, f func(P) (R, error)) {
	d.HandleFunc(name, func(params Params) (Value, error) {
		var p P
		if err := FromParams(params, &p); err != nil {
			return nil, &Fault{Code: 400, Message: "Failed to decode request: " + err.Error()}
		}
		r, err := f(p)
		if err != nil {
			return nil, err
		}
		v, err := ToValue(r)
		if err != nil {
			return nil, &Fault{Code: 500, Message: "Failed to encode response: " + err.Error()}
		}
		return v, nil
	})
}
