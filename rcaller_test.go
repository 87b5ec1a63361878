package xmlrpc

import (
	"errors"
	"testing"
	"time"

	"github.com/mdzio/go-lib/conc"
)

type funcCaller func(method string, params Params) (Value, error)

func (f funcCaller) Call(method string, params Params) (Value, error) {
	return f(method, params)
}

func runWithContext(t *testing.T, f func(ctx conc.Context)) {
	done := make(chan struct{})
	cancel := conc.DaemonFunc(func(ctx conc.Context) {
		defer close(done)
		f(ctx)
	})
	defer cancel()
	<-done
}

func TestRetryingCallerRetry(t *testing.T) {
	runWithContext(t, func(ctx conc.Context) {
		cnt := 0
		c := &RetryingCaller{
			Caller: funcCaller(func(method string, params Params) (Value, error) {
				cnt++
				if cnt <= 2 {
					return nil, errors.New("connection refused")
				}
				return Int(1), nil
			}),
			RetryCount: 2,
			RetryDelay: time.Millisecond,
			Context:    ctx,
		}
		res, err := c.Call("m", nil)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		if !Equal(res, Int(1)) {
			t.Errorf("unexpected result: %v", res)
		}
		if cnt != 3 {
			t.Errorf("unexpected number of calls: %d", cnt)
		}
	})
}

func TestRetryingCallerFault(t *testing.T) {
	runWithContext(t, func(ctx conc.Context) {
		cnt := 0
		fault := &Fault{Code: 11, Message: "access denied"}
		c := &RetryingCaller{
			Caller: funcCaller(func(method string, params Params) (Value, error) {
				cnt++
				return nil, fault
			}),
			RetryCount: 2,
			RetryDelay: time.Millisecond,
			Context:    ctx,
		}
		_, err := c.Call("m", nil)
		if err != fault {
			t.Errorf("unexpected error: %v", err)
		}
		if cnt != 1 {
			t.Errorf("unexpected number of calls: %d", cnt)
		}
	})
}

func TestRetryingCallerExhausted(t *testing.T) {
	runWithContext(t, func(ctx conc.Context) {
		cnt := 0
		c := &RetryingCaller{
			Caller: funcCaller(func(method string, params Params) (Value, error) {
				cnt++
				return nil, errors.New("connection refused")
			}),
			RetryCount: 2,
			RetryDelay: time.Millisecond,
			Context:    ctx,
		}
		_, err := c.Call("m", nil)
		if err == nil || err.Error() != "connection refused" {
			t.Errorf("unexpected error: %v", err)
		}
		if cnt != 3 {
			t.Errorf("unexpected number of calls: %d", cnt)
		}
	})
}
