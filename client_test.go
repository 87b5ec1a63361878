package xmlrpc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mdzio/go-lib/testutil"
)

// Test configuration (environment variables)
const (
	// LOG_LEVEL: OFF, ERROR, WARNING, INFO, DEBUG, TRACE

	// hostname or IP address of an XML-RPC test endpoint with port, e.g.
	// 192.168.0.10:2001
	endpointAddress = "XMLRPC_ADDRESS"
)

func TestClientLive(t *testing.T) {
	addr := "http://" + testutil.Config(t, endpointAddress)
	c := Client{Addr: addr}

	res, err := c.Call("system.listMethods", nil)
	if err != nil {
		t.Fatal(err)
	}
	names := Q(res).Strings()
	if len(names) == 0 {
		t.Error("no methods listed")
	}
}

func TestClientCall(t *testing.T) {
	var gotReq string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotReq = string(body)
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, "<?xml version=\"1.0\"?>\n"+
			"<methodResponse><params><param><value><i4>42</i4></value></param></params></methodResponse>")
	}))
	defer srv.Close()

	c := Client{Addr: srv.URL}
	res, err := c.Call("getValue", Params{String("GEQ0123456:1"), String("STATE")})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, Int(42)) {
		t.Errorf("unexpected result: %v", res)
	}
	if !strings.HasPrefix(gotReq, "<?xml version=\"1.0\"?>\n") {
		t.Errorf("unexpected declaration: %s", gotReq)
	}
	if !strings.Contains(gotReq, "<methodName>getValue</methodName>") ||
		!strings.Contains(gotReq, "<value><string>GEQ0123456:1</string></value>") ||
		!strings.Contains(gotReq, "<value><string>STATE</string></value>") {
		t.Errorf("unexpected request: %s", gotReq)
	}
}

func TestClientFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, "<?xml version=\"1.0\"?>\n"+
			"<methodResponse><fault><value><struct>"+
			"<member><name>faultCode</name><value><i4>-1</i4></value></member>"+
			"<member><name>faultString</name><value>unknownMethod: unknown method name</value></member>"+
			"</struct></value></fault></methodResponse>")
	}))
	defer srv.Close()

	c := Client{Addr: srv.URL}
	res, err := c.Call("unknownMethod", nil)
	if res != nil || err == nil {
		t.Fatal("error expected")
	}
	if err.Error() != "RPC fault (code: -1, message: unknownMethod: unknown method name)" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClientBadResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			// test case 1
			"two params",
			"<methodResponse><params>" +
				"<param><value><i4>1</i4></value></param>" +
				"<param><value><i4>2</i4></value></param>" +
				"</params></methodResponse>",
			"Invalid or no parameters in response from ",
		},
		{
			// test case 2
			"no params",
			"<methodResponse><params></params></methodResponse>",
			"Invalid or no parameters in response from ",
		},
		{
			// test case 3
			"garbage",
			"this is not xml",
			"Decoding of response from ",
		},
		{
			// test case 4
			"malformed fault",
			"<methodResponse><fault><value><struct>" +
				"<member><name>faultCode</name><value><string>x</string></value></member>" +
				"<member><name>faultString</name><value><string>y</string></value></member>" +
				"</struct></value></fault></methodResponse>",
			"Decoding of response from ",
		},
	}
	for i, c := range cases {
		body := c.body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/xml")
			io.WriteString(w, body)
		}))
		cln := Client{Addr: srv.URL}
		_, err := cln.Call("m", nil)
		if err == nil {
			t.Errorf("missing error in test case %d", i+1)
		} else if !strings.HasPrefix(err.Error(), c.want) {
			t.Errorf("unexpected error in test case %d: %v", i+1, err)
		}
		srv.Close()
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := Client{Addr: srv.URL}
	_, err := c.Call("m", nil)
	if err == nil || !strings.Contains(err.Error(), "code: 500") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClientResponseSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, "<?xml version=\"1.0\"?>\n"+
			"<methodResponse><params><param><value><i4>42</i4></value></param></params></methodResponse>")
	}))
	defer srv.Close()

	c := Client{Addr: srv.URL, ResponseSizeLimit: 10}
	_, err := c.Call("m", nil)
	if err == nil || !strings.HasPrefix(err.Error(), "Decoding of response from ") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClientLatin1(t *testing.T) {
	var gotReq []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, "<?xml version=\"1.0\"?>\n"+
			"<methodResponse><params><param><value><string>ok</string></value></param></params></methodResponse>")
	}))
	defer srv.Close()

	c := Client{Addr: srv.URL, Latin1: true}
	res, err := c.Call("setName", Params{String("grün")})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(res, String("ok")) {
		t.Errorf("unexpected result: %v", res)
	}
	if !strings.HasPrefix(string(gotReq), "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n") {
		t.Errorf("unexpected declaration: %s", gotReq)
	}
	if !strings.Contains(string(gotReq), "gr\xfcn") {
		t.Errorf("request not ISO8859-1 encoded: %q", gotReq)
	}
}

func TestInvoke(t *testing.T) {
	type echoMsg struct {
		Text  string `xmlrpc:"text"`
		Count int    `xmlrpc:"count"`
	}
	d := &BasicDispatcher{}
	Register(d, "echo", func(m echoMsg) (echoMsg, error) {
		return m, nil
	})
	srv := httptest.NewServer(&Handler{Dispatcher: d})
	defer srv.Close()
	c := &Client{Addr: srv.URL}

	in := echoMsg{Text: "hi", Count: 3}
	var out echoMsg
	if err := Invoke(c, "echo", in, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("unexpected result: %+v", out)
	}

	// a nil out discards the response value
	if err := Invoke(c, "echo", in, nil); err != nil {
		t.Fatal(err)
	}

	// a fault travels through
	err := Invoke(c, "missing", "x", nil)
	fault, ok := err.(*Fault)
	if !ok {
		t.Fatalf("invalid error type: %T", err)
	}
	if fault.Code != 404 {
		t.Errorf("unexpected fault code: %d", fault.Code)
	}
}
