package xmlrpc

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
	"github.com/mdzio/go-logging"

	"golang.org/x/text/encoding/charmap"
)

// max. size of a valid response, if not specified: 10 MB
const responseSizeLimit = 10 * 1024 * 1024

// Caller is an interface for calling XML-RPC functions.
type Caller interface {
	Call(method string, params Params) (Value, error)
}

var clnLog = logging.Get("xmlrpc-client")

// Client provides access to an XML-RPC server.
type Client struct {
	Addr string
	// maximum size of a response in bytes, if 0: 10 MB
	ResponseSizeLimit int64
	// encode requests with the ISO8859-1 character set instead of UTF-8
	Latin1 bool
	// compress requests and accept compressed responses
	Compression bool
}

// Call executes a remote procedure call. Call implements Caller. A fault
// response is returned as *Fault error.
func (c *Client) Call(method string, params Params) (Value, error) {
	clnLog.Tracef("Calling method %s on %s", method, c.Addr)
	methodCall := &Call{Method: method, Params: params}

	// encode request to xml
	var reqBuf bytes.Buffer
	var err error
	if c.Latin1 {
		// use ISO8859-1 character encoding for the request
		reqWriter := charmap.ISO8859_1.NewEncoder().Writer(&reqBuf)
		err = writeDeclaration(reqWriter, "ISO-8859-1")
		if err == nil {
			err = encodeCall(reqWriter, methodCall)
		}
	} else {
		err = WriteCall(&reqBuf, methodCall)
	}
	if err != nil {
		return nil, fmt.Errorf("Encoding of request for %s failed: %v", c.Addr, err)
	}
	if clnLog.TraceEnabled() {
		// attention: log message is possibly ISO8859-1 encoded!
		clnLog.Tracef("Request XML: %s", reqBuf.String())
	}

	// http post
	var httpResp *http.Response
	if c.Compression {
		var zippedBuf bytes.Buffer
		zipWriter := gzip.NewWriter(&zippedBuf)
		_, err = zipWriter.Write(reqBuf.Bytes())
		if err == nil {
			err = zipWriter.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("Compression of request for %s failed: %v", c.Addr, err)
		}
		httpReq, err := http.NewRequest(http.MethodPost, c.Addr, bytes.NewReader(zippedBuf.Bytes()))
		if err != nil {
			return nil, fmt.Errorf("Building of request for %s failed: %v", c.Addr, err)
		}
		httpReq.Header.Set("Content-Type", "text/xml")
		httpReq.Header.Set("Content-Encoding", "gzip")
		httpReq.Header.Set("Accept-Encoding", "gzip")
		httpResp, err = http.DefaultClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed on %s: %v", c.Addr, err)
		}
	} else {
		httpResp, err = http.Post(c.Addr, "text/xml", bytes.NewReader(reqBuf.Bytes()))
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed on %s: %v", c.Addr, err)
		}
	}
	defer httpResp.Body.Close()

	// check status
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 299 {
		return nil, fmt.Errorf("HTTP request failed on %s with code: %s", c.Addr, httpResp.Status)
	}

	// read response
	var bodyReader io.Reader = httpResp.Body
	if httpResp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(bodyReader)
		if err != nil {
			return nil, fmt.Errorf("Reading of response failed from %s: %v", c.Addr, err)
		}
		defer gzReader.Close()
		bodyReader = gzReader
	}
	limit := c.ResponseSizeLimit
	if limit == 0 {
		limit = responseSizeLimit
	}
	limitReader := io.LimitReader(bodyReader, limit)
	respBuf, err := io.ReadAll(limitReader)
	if err != nil {
		return nil, fmt.Errorf("Reading of response failed from %s: %v", c.Addr, err)
	}
	if clnLog.TraceEnabled() {
		// attention: log message is possibly ISO8859-1 encoded!
		clnLog.Tracef("Response XML: %s", string(respBuf))
	}

	// decode response from xml
	resp, err := ReadResponse(bytes.NewReader(respBuf))
	if err != nil {
		return nil, fmt.Errorf("Decoding of response from %s failed: %v", c.Addr, err)
	}

	// check fault
	if resp.Fault != nil {
		return nil, resp.Fault
	}

	// check response
	if len(resp.Params) != 1 {
		return nil, fmt.Errorf("Invalid or no parameters in response from %s", c.Addr)
	}
	return resp.Params[0], nil
}

// Invoke executes a remote procedure call with native data types. The
// arguments are encoded with ToParams, the single response parameter is
// decoded with FromValue into out. A nil out discards the response value. A
// fault response is returned as *Fault error.
func Invoke(c Caller, method string, in, out interface{}) error {
	params, err := ToParams(in)
	if err != nil {
		return fmt.Errorf("Encoding of request for method %s failed: %v", method, err)
	}
	res, err := c.Call(method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	err = FromValue(res, out)
	if err != nil {
		return fmt.Errorf("Decoding of response of method %s failed: %v", method, err)
	}
	return nil
}
