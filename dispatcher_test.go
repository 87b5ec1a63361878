package xmlrpc

import (
	"errors"
	"sort"
	"testing"
)

func newTestDispatcher() *BasicDispatcher {
	d := &BasicDispatcher{}
	d.HandleFunc("echo", func(p Params) (Value, error) {
		if len(p) != 1 {
			return nil, errors.New("Expected one parameter")
		}
		return p[0], nil
	})
	d.HandleFunc("add", func(p Params) (Value, error) {
		if len(p) != 2 {
			return nil, errors.New("Expected two parameters")
		}
		a, b := Q(p[0]), Q(p[1])
		sum := a.Int() + b.Int()
		if a.Err() != nil {
			return nil, a.Err()
		}
		if b.Err() != nil {
			return nil, b.Err()
		}
		return Int(sum), nil
	})
	return d
}

func TestDispatch(t *testing.T) {
	d := newTestDispatcher()
	res, err := d.Dispatch("add", Params{Int(1), Int(2)})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, Int(3)) {
		t.Error("unexpected result: ", res)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newTestDispatcher()
	_, err := d.Dispatch("nope", nil)
	fault, ok := err.(*Fault)
	if !ok {
		t.Fatal("expected fault, got: ", err)
	}
	if fault.Code != 404 || fault.Message != "Unknown method: nope" {
		t.Error("unexpected fault: ", fault)
	}

	// a registered unknown method handler takes over
	d.HandleUnknownFunc(func(name string, p Params) (Value, error) {
		return String("caught " + name), nil
	})
	res, err := d.Dispatch("nope", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, String("caught nope")) {
		t.Error("unexpected result: ", res)
	}
}

func TestSystemListMethods(t *testing.T) {
	d := newTestDispatcher()
	d.AddSystemMethods()
	res, err := d.Dispatch("system.listMethods", nil)
	if err != nil {
		t.Fatal(err)
	}
	names := Q(res).Strings()
	sort.Strings(names)
	want := []string{"add", "echo", "system.listMethods", "system.methodHelp", "system.multicall"}
	if len(names) != len(want) {
		t.Fatalf("unexpected method names: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("unexpected method name: %s", names[i])
		}
	}
}

func TestSystemMethodHelp(t *testing.T) {
	d := newTestDispatcher()
	d.AddSystemMethods()
	res, err := d.Dispatch("system.methodHelp", Params{String("echo")})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, String("")) {
		t.Error("unexpected result: ", res)
	}
}

func TestSystemMulticall(t *testing.T) {
	d := newTestDispatcher()
	d.AddSystemMethods()
	mc := Array{
		Struct{
			{"methodName", String("add")},
			{"params", Array{Int(1), Int(2)}},
		},
		Struct{
			{"methodName", String("echo")},
			{"params", Array{String("x")}},
		},
	}
	res, err := d.Dispatch("system.multicall", Params{mc})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, Array{Int(3), String("x")}) {
		t.Error("unexpected result: ", res)
	}

	// a failing method fails the whole multicall
	mc = Array{
		Struct{
			{"methodName", String("nope")},
			{"params", Array{}},
		},
	}
	_, err = d.Dispatch("system.multicall", Params{mc})
	if err == nil {
		t.Error("missing error")
	}

	// the single parameter must be an array of call structs
	_, err = d.Dispatch("system.multicall", Params{Int(1)})
	if err == nil {
		t.Error("missing error")
	}
	_, err = d.Dispatch("system.multicall", nil)
	if err == nil {
		t.Error("missing error")
	}
}

func TestRegister(t *testing.T) {
	d := newTestDispatcher()
	Register(d, "greet", func(name string) (string, error) {
		return "Hello " + name + "!", nil
	})
	res, err := d.Dispatch("greet", Params{String("World")})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, String("Hello World!")) {
		t.Error("unexpected result: ", res)
	}

	// a decode failure is answered with fault 400
	_, err = d.Dispatch("greet", Params{Int(1)})
	fault, ok := err.(*Fault)
	if !ok {
		t.Fatal("expected fault, got: ", err)
	}
	if fault.Code != 400 || fault.Message != "Failed to decode request: Invalid type: int, expected string" {
		t.Error("unexpected fault: ", fault)
	}

	// a handler error passes through unchanged
	handlerErr := errors.New("device not reachable")
	Register(d, "failing", func(addr string) (string, error) {
		return "", handlerErr
	})
	_, err = d.Dispatch("failing", Params{String("a")})
	if err != handlerErr {
		t.Error("unexpected error: ", err)
	}

	// an encode failure is answered with fault 500
	Register(d, "unencodable", func(in string) (chan int, error) {
		return nil, nil
	})
	_, err = d.Dispatch("unencodable", Params{String("a")})
	fault, ok = err.(*Fault)
	if !ok {
		t.Fatal("expected fault, got: ", err)
	}
	if fault.Code != 500 || fault.Message != "Failed to encode response: Cannot encode type chan int" {
		t.Error("unexpected fault: ", fault)
	}
}

func TestRegisterTypedStruct(t *testing.T) {
	type lookupReq struct {
		Address string `xmlrpc:"address"`
		Channel int    `xmlrpc:"channel"`
	}
	d := &BasicDispatcher{}
	Register(d, "lookup", func(req lookupReq) ([]string, error) {
		return []string{req.Address, "channel"}, nil
	})
	res, err := d.Dispatch("lookup", Params{Struct{
		{"address", String("GEQ0123456")},
		{"channel", Int(1)},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, Array{String("GEQ0123456"), String("channel")}) {
		t.Error("unexpected result: ", res)
	}
}
