package xmlrpc

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/mdzio/go-logging"

	"golang.org/x/text/encoding/charmap"
)

// max. size of a valid request, if not specified: 10 MB
const requestSizeLimit = 10 * 1024 * 1024

var svrLog = logging.Get("xmlrpc-server")

// Handler implements a http.Handler which can handle XML-RPC requests. Remote
// calls are dispatched to the registered Method's.
type Handler struct {
	// maximum size of a request in bytes, if 0: 10 MB
	RequestSizeLimit int64
	// encode responses with the ISO8859-1 character set instead of UTF-8
	Latin1 bool
	// decompress gzip encoded requests and compress responses, if the client
	// accepts it
	Compression bool

	Dispatcher
}

func (h *Handler) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	svrLog.Tracef("Request received from %s, URI %s", req.RemoteAddr, req.RequestURI)

	// read request
	limit := h.RequestSizeLimit
	if limit == 0 {
		limit = requestSizeLimit
	}
	var reqReader io.Reader = http.MaxBytesReader(resp, req.Body, limit)
	if h.Compression && req.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(reqReader)
		if err != nil {
			svrLog.Errorf("Reading of request from %s failed: %v", req.RemoteAddr, err)
			http.Error(resp, "Reading of request failed: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer gzReader.Close()
		// the limit must also hold for the decompressed request, one excess
		// byte flags an oversized body
		reqReader = io.LimitReader(gzReader, limit+1)
	}
	reqBuf, err := io.ReadAll(reqReader)
	if err != nil {
		svrLog.Errorf("Reading of request from %s failed: %v", req.RemoteAddr, err)
		http.Error(resp, "Reading of request failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(reqBuf)) > limit {
		svrLog.Errorf("Request from %s exceeds the size limit of %d bytes", req.RemoteAddr, limit)
		http.Error(resp, "Request too large", http.StatusBadRequest)
		return
	}
	if svrLog.TraceEnabled() {
		svrLog.Tracef("Request XML: %s", string(reqBuf))
	}

	// decode request from xml
	var methodResponse *Response
	call, err := ReadCall(bytes.NewReader(reqBuf))
	if err != nil {
		// a malformed request is answered with a fault response, not with an
		// HTTP error
		svrLog.Errorf("Decoding of request from %s failed: %v", req.RemoteAddr, err)
		methodResponse = newFaultResponse(&Fault{Code: 400, Message: err.Error()})
	} else {
		// dispatch call
		res, err := h.Dispatch(call.Method, call.Params)
		if err != nil {
			svrLog.Warningf("Sending error response to %s: %v", req.RemoteAddr, err)
			methodResponse = newFaultResponse(err)
		} else {
			methodResponse = &Response{Params: Params{res}}
		}
	}

	// encode response to xml
	var respBuf bytes.Buffer
	if h.Latin1 {
		// use ISO8859-1 character encoding for the response
		respWriter := charmap.ISO8859_1.NewEncoder().Writer(&respBuf)
		err = writeDeclaration(respWriter, "ISO-8859-1")
		if err == nil {
			err = encodeResponse(respWriter, methodResponse)
		}
	} else {
		err = WriteResponse(&respBuf, methodResponse)
	}
	if err != nil {
		svrLog.Errorf("Encoding of response for %s failed: %v", req.RemoteAddr, err)
		http.Error(resp, "Encoding of response failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if svrLog.TraceEnabled() {
		// attention: log message is possibly ISO8859-1 encoded!
		svrLog.Tracef("Response XML: %s", respBuf.String())
	}

	// send response
	out := respBuf.Bytes()
	if h.Compression && strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
		var zippedBuf bytes.Buffer
		zipWriter := gzip.NewWriter(&zippedBuf)
		_, err = zipWriter.Write(out)
		if err == nil {
			err = zipWriter.Close()
		}
		if err != nil {
			svrLog.Errorf("Compression of response for %s failed: %v", req.RemoteAddr, err)
			http.Error(resp, "Compression of response failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Header().Set("Content-Encoding", "gzip")
		out = zippedBuf.Bytes()
	}
	resp.Header().Set("Content-Type", "text/xml")
	resp.Header().Set("Content-Length", strconv.Itoa(len(out)))
	_, err = resp.Write(out)
	if err != nil {
		svrLog.Warningf("Sending of response for %s failed: %v", req.RemoteAddr, err)
		return
	}
}
