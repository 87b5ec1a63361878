package xmlrpc

import (
	"time"

	"github.com/mdzio/go-lib/conc"
)

// RetryingCaller wraps a Caller and repeats failed calls.
type RetryingCaller struct {
	// Function that is called multiple times if it returns an error.
	Caller Caller

	// Number of retries. 0 disables retries.
	RetryCount int

	// Delay between retries.
	RetryDelay time.Duration

	// The repeated calls can be cancelled with this context.
	Context conc.Context
}

// Call implements Caller.
func (c *RetryingCaller) Call(method string, params Params) (Value, error) {
	// retry counter
	rcnt := 0
	for {
		// try a call
		value, err := c.Caller.Call(method, params)
		// on success, return value
		if err == nil {
			return value, nil
		}
		// a fault is a definitive answer of the server and is not retried
		if _, ok := err.(*Fault); ok {
			return nil, err
		}
		// give up when the retries have been used up
		rcnt++
		if rcnt > c.RetryCount {
			return nil, err
		}
		clnLog.Debugf("Call of method %s failed, retry in %s: %v", method, c.RetryDelay, err)
		// wait before the next call
		errc := c.Context.Sleep(c.RetryDelay)
		if errc != nil {
			// return last error
			return nil, err
		}
	}
}
