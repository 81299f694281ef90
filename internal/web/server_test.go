package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	json "github.com/json-iterator/go"

	"meshping/internal/database"
	"meshping/internal/exposition"
	"meshping/internal/logging"
	"meshping/internal/models"
	"meshping/internal/monitor"
	"meshping/internal/netclass"
	"meshping/internal/reconcile"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupAddrs(_ context.Context, name string) ([]string, error) {
	if addrs, ok := f[name]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

type fakeCharts struct {
	err   error
	node  string
	name  string
	addr  string
	calls int
}

func (f *fakeCharts) Render(_ context.Context, node, name, addr string) ([]byte, error) {
	f.calls++
	f.node, f.name, f.addr = node, name, addr
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG fake"), nil
}

var testStatic = fstest.MapFS{
	"index.html": {Data: []byte(`<html><body data-have-prom="{{.HaveProm}}"><h1>{{.Hostname}}</h1></body></html>`)},
	"ui/app.js":  {Data: []byte(`console.log("meshping");`)},
}

type testEnv struct {
	handler http.Handler
	engine  *monitor.Monitor
}

func newTestEnv(t *testing.T, charts models.ChartRenderer) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "meshping.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	logger := logging.Discard()
	engine := monitor.New(monitor.Config{}, db, nil, logger)
	classifier := netclass.NewStatic("192.168.0.5/24")
	resolver := fakeResolver{"example.com": {"93.184.216.34", "2606:2800:220:1::"}}
	rec := reconcile.New(engine, classifier, resolver, logger)

	srv, err := New(Config{Hostname: "node1"}, rec, exposition.New(engine), charts, testStatic, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{handler: srv.Handler(), engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func (e *testEnv) keys(t *testing.T) []string {
	t.Helper()
	targets, err := e.engine.Targets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	keys := make([]string, 0, len(targets))
	for _, tgt := range targets {
		keys = append(keys, tgt.Key())
	}
	return keys
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<h1>node1</h1>") || !strings.Contains(body, `data-have-prom="false"`) {
		t.Errorf("unexpected index: %s", body)
	}

	env = newTestEnv(t, &fakeCharts{})
	if body := env.do(t, http.MethodGet, "/", "", "").Body.String(); !strings.Contains(body, `data-have-prom="true"`) {
		t.Errorf("prometheus flag not set: %s", body)
	}
}

func TestUIFilesAreNotCached(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/ui/app.js", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !strings.Contains(rr.Body.String(), "meshping") {
		t.Errorf("unexpected body %q", rr.Body.String())
	}

	if rr := env.do(t, http.MethodGet, "/ui/missing.js", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d", rr.Code)
	}
}

func TestPeer(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"targets":[
		{"name":"self","addr":"192.168.0.5","local":true},
		{"name":"raspi","addr":"192.168.0.123","local":true},
		{"name":"far","addr":"10.9.9.9","local":true},
		{"name":"google","addr":"8.8.8.8","local":false}]}`

	rr := env.do(t, http.MethodPost, "/peer", "application/json", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
	resp := decode(t, rr)
	if resp["success"] != true {
		t.Errorf("success = %v", resp["success"])
	}
	if targets, _ := resp["targets"].([]any); len(targets) != 2 {
		t.Errorf("expected 2 target snapshots, got %v", resp["targets"])
	}

	want := "raspi@192.168.0.123,google@8.8.8.8"
	if got := strings.Join(env.keys(t), ","); got != want {
		t.Errorf("targets = %s, want %s", got, want)
	}
}

func TestPeerRejectsBadInput(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantMsg     string
	}{
		{"wrong content type", "text/plain", `{"targets":[]}`, "Please send content-type:application/json"},
		{"targets not list", "application/json", `{"targets":{}}`, "need targets as a list"},
		{"entry not object", "application/json", `{"targets":[1]}`, "targets must be dicts"},
		{
			"partial batch", "application/json",
			`{"targets":[{"name":"google","addr":"8.8.8.8","local":false},{"name":"x","addr":"1.1.1.1"}]}`,
			"required field missing in target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rr := env.do(t, http.MethodPost, "/peer", tt.contentType, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Errorf("body %q does not mention %q", rr.Body.String(), tt.wantMsg)
			}
			if keys := env.keys(t); len(keys) != 0 {
				t.Errorf("targets applied from rejected submission: %v", keys)
			}
		})
	}
}

func TestTargetsAPI(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/targets", "application/json", `{"target":"example.com"}`)
	resp := decode(t, rr)
	if resp["success"] != true {
		t.Fatalf("add by name failed: %v", resp)
	}
	if targets, _ := resp["targets"].([]any); len(targets) != 2 {
		t.Errorf("expected one key per address, got %v", resp["targets"])
	}

	rr = env.do(t, http.MethodPost, "/api/targets", "application/json", `{"target":"dns@9.9.9.9"}`)
	if resp := decode(t, rr); resp["success"] != true {
		t.Fatalf("add by key failed: %v", resp)
	}

	rr = env.do(t, http.MethodGet, "/api/targets", "", "")
	resp = decode(t, rr)
	targets, _ := resp["targets"].([]any)
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %v", resp["targets"])
	}
	first, _ := targets[0].(map[string]any)
	if first["succ"] != float64(100) || first["loss"] != float64(0) {
		t.Errorf("unexpected loss figures: %v", first)
	}

	rr = env.do(t, http.MethodDelete, "/api/targets/dns@9.9.9.9", "", "")
	if resp := decode(t, rr); resp["success"] != true {
		t.Errorf("delete failed: %v", resp)
	}
	rr = env.do(t, http.MethodDelete, "/api/targets/dns@9.9.9.9", "", "")
	if resp := decode(t, rr); resp["success"] != true {
		t.Errorf("repeated delete failed: %v", resp)
	}
	if keys := env.keys(t); len(keys) != 2 {
		t.Errorf("expected 2 targets after delete, got %v", keys)
	}

	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		rr = env.do(t, method, "/api/targets/example.com@93.184.216.34", "application/json", `{}`)
		if resp := decode(t, rr); resp["success"] != false {
			t.Errorf("%s should not succeed: %v", method, resp)
		}
	}

	rr = env.do(t, http.MethodDelete, "/api/stats", "", "")
	if resp := decode(t, rr); resp["success"] != true {
		t.Errorf("clear stats failed: %v", resp)
	}
}

func TestAddTargetErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []string{`{}`, `not json`, `{"target":42}`} {
		rr := env.do(t, http.MethodPost, "/api/targets", "application/json", body)
		if rr.Code != http.StatusBadRequest || rr.Body.String() != "missing target" {
			t.Errorf("body %s: status %d, %q", body, rr.Code, rr.Body.String())
		}
	}

	rr := env.do(t, http.MethodPost, "/api/targets", "application/json", `{"target":"nope.invalid"}`)
	resp := decode(t, rr)
	if resp["success"] != false || resp["error"] == nil {
		t.Errorf("expected resolution failure envelope, got %v", resp)
	}
	if keys := env.keys(t); len(keys) != 0 {
		t.Errorf("unexpected targets: %v", keys)
	}
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := decode(t, env.do(t, http.MethodGet, "/api/resolve/example.com", "", ""))
	addrs, _ := resp["addrs"].([]any)
	if resp["success"] != true || len(addrs) != 2 {
		t.Errorf("unexpected resolve response: %v", resp)
	}

	resp = decode(t, env.do(t, http.MethodGet, "/api/resolve/nope.invalid", "", ""))
	if resp["success"] != false {
		t.Errorf("expected failure, got %v", resp)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/targets", "application/json", `{"target":"dns@9.9.9.9"}`)

	rr := env.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE meshping_pings histogram\n",
		`meshping_sent{name="dns",target="9.9.9.9"} 0`,
		`meshping_pings_count{name="dns",target="9.9.9.9"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "meshping_max{") {
		t.Errorf("max emitted for a target without replies")
	}
}

func TestInternalMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/targets", "", "")

	rr := env.do(t, http.MethodGet, "/internal/metrics", "", "")
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `meshping_http_requests_total{method="GET",route="/api/targets",status="200"} 1`) {
		t.Errorf("request counter missing:\n%s", body)
	}
}

func TestHistogram(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do(t, http.MethodGet, "/histogram/node1/dns.png", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("without prometheus: status = %d", rr.Code)
	}

	charts := &fakeCharts{}
	env = newTestEnv(t, charts)
	env.do(t, http.MethodPost, "/api/targets", "application/json", `{"target":"dns@9.9.9.9"}`)

	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"by name", "/histogram/node1/dns.png", nil, http.StatusOK},
		{"by addr", "/histogram/node1/9.9.9.9.png", nil, http.StatusOK},
		{"by key", "/histogram/node1/other@1.1.1.1.png", nil, http.StatusOK},
		{"unknown target", "/histogram/node1/unknown.png", nil, http.StatusBadRequest},
		{"not a png", "/histogram/node1/dns", nil, http.StatusNotFound},
		{"no data", "/histogram/node1/dns.png", models.ErrNotFound, http.StatusNotFound},
		{"backend error", "/histogram/node1/dns.png", errors.New("timeout"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			charts.err = tt.err
			rr := env.do(t, http.MethodGet, tt.path, "", "")
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && rr.Header().Get("Content-Type") != "image/png" {
				t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
			}
		})
	}

	charts.err = nil
	env.do(t, http.MethodGet, "/histogram/node2/9.9.9.9.png", "", "")
	if charts.node != "node2" || charts.name != "dns" || charts.addr != "9.9.9.9" {
		t.Errorf("renderer called with %s %s %s", charts.node, charts.name, charts.addr)
	}
}
