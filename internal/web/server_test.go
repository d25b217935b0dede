package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/dose-dispenser/internal/schedule"
	"github.com/sweeney/dose-dispenser/internal/status"
)

type fakeControls struct {
	mu       sync.Mutex
	session  bool
	calls    []string
	opened   []schedule.Category
	refilled []int
	wifi     []string
	wifiErr  error
	profile  json.RawMessage
}

func (f *fakeControls) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeControls) act(call string) bool {
	f.record(call)
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := f.session
	f.session = false
	return ok
}

func (f *fakeControls) Pick() bool    { return f.act("pick") }
func (f *fakeControls) Skip() bool    { return f.act("skip") }
func (f *fakeControls) Dismiss() bool { return f.act("dismiss") }

func (f *fakeControls) OpenCategory(cat schedule.Category) {
	f.record("open")
	f.mu.Lock()
	f.opened = append(f.opened, cat)
	f.mu.Unlock()
}

func (f *fakeControls) CloseCategory() { f.record("close") }
func (f *fakeControls) RequestSync()   { f.record("sync") }

func (f *fakeControls) Refill(slot int) error {
	if slot < schedule.MinSlot || slot > schedule.MaxSlot {
		return errors.New("slot out of range")
	}
	f.mu.Lock()
	f.refilled = append(f.refilled, slot)
	f.mu.Unlock()
	return nil
}

func (f *fakeControls) ConnectWiFi(_ context.Context, ssid, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wifi = append(f.wifi, ssid+"/"+password)
	return f.wifiErr
}

func (f *fakeControls) Profile() (json.RawMessage, bool) {
	return f.profile, f.profile != nil
}

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *fakeControls) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		DeviceID:        "dev-1",
		Backend:         "https://api.example.com/api",
		FetchIntervalMs: 5000,
		HeartbeatMs:     60000,
		Broker:          "tcp://192.168.1.200:1883",
		HTTPAddr:        ":80",
	}
	tr := status.NewTracker(start, cfg)
	fc := &fakeControls{}
	srv := New(":0", tr, fc)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, fc
}

func getStatus(t *testing.T, ts *httptest.Server) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func post(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetMainSummary("Aspirin", "02:05 PM", "1 tab", "upcoming")
	tr.SetMQTTConnected(true)
	tr.CountEvent("ALERT")

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	sj := getStatus(t, ts)
	if sj.Status.Next.Name != "Aspirin" {
		t.Errorf("Next.Name: got %q, want Aspirin", sj.Status.Next.Name)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Alerts != 1 {
		t.Errorf("Counts.Alerts: got %d, want 1", sj.Status.Counts.Alerts)
	}
	if sj.Status.Config.DeviceID != "dev-1" {
		t.Errorf("Config.DeviceID: got %q", sj.Status.Config.DeviceID)
	}
}

func TestHTMLEndpoints(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.ShowAlert("Aspirin", "02:05 PM", "1 tab")

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s: status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s: Content-Type: got %q, want text/html", path, ct)
		}
		if !strings.Contains(string(body), "Aspirin") {
			t.Errorf("%s: alert not rendered", path)
		}
		if !strings.Contains(string(body), `action="/alert/pick"`) {
			t.Errorf("%s: pick form not rendered", path)
		}
	}
}

func TestReadOnlyServer(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	ts := httptest.NewServer(New(":0", tr, nil).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/alert/pick", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestAlertActions(t *testing.T) {
	ts, _, fc := newTestServer(t)

	if resp := post(t, ts, "/alert/pick"); resp.StatusCode != http.StatusConflict {
		t.Errorf("pick without alert: got %d, want 409", resp.StatusCode)
	}

	for _, path := range []string{"/alert/pick", "/alert/skip", "/alert/dismiss"} {
		fc.mu.Lock()
		fc.session = true
		fc.mu.Unlock()
		if resp := post(t, ts, path); resp.StatusCode != 200 {
			t.Errorf("%s: got %d, want 200", path, resp.StatusCode)
		}
	}

	want := []string{"pick", "pick", "skip", "dismiss"}
	if strings.Join(fc.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls: got %v, want %v", fc.calls, want)
	}
}

func TestFormPostRedirects(t *testing.T) {
	ts, _, fc := newTestServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.PostForm(ts.URL+"/sync", url.Values{"redirect": {"1"}})
	if err != nil {
		t.Fatalf("POST /sync: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status: got %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Location: got %q, want /", loc)
	}
	if len(fc.calls) != 1 || fc.calls[0] != "sync" {
		t.Errorf("calls: got %v", fc.calls)
	}
}

func TestViewEndpoints(t *testing.T) {
	ts, _, fc := newTestServer(t)

	if resp := post(t, ts, "/view/taken"); resp.StatusCode != 200 {
		t.Errorf("view taken: got %d", resp.StatusCode)
	}
	if resp := post(t, ts, "/view/bogus"); resp.StatusCode != 404 {
		t.Errorf("view bogus: got %d, want 404", resp.StatusCode)
	}
	if resp := post(t, ts, "/view/close"); resp.StatusCode != 200 {
		t.Errorf("view close: got %d", resp.StatusCode)
	}

	if len(fc.opened) != 1 || fc.opened[0] != schedule.Taken {
		t.Errorf("opened: got %v, want [taken]", fc.opened)
	}
	if fc.calls[len(fc.calls)-1] != "close" {
		t.Errorf("expected close call, got %v", fc.calls)
	}
}

func TestRefill(t *testing.T) {
	ts, _, fc := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/refill/3", 200},
		{"/refill/9", 400},
		{"/refill/abc", 400},
	}
	for _, tt := range tests {
		if resp := post(t, ts, tt.path); resp.StatusCode != tt.want {
			t.Errorf("%s: got %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
	if len(fc.refilled) != 1 || fc.refilled[0] != 3 {
		t.Errorf("refilled: got %v, want [3]", fc.refilled)
	}
}

func TestWiFiConnect(t *testing.T) {
	ts, _, fc := newTestServer(t)

	resp, err := http.Post(ts.URL+"/wifi/connect", "application/json", strings.NewReader(`{"ssid":"Home","password":"pw"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}

	resp, _ = http.Post(ts.URL+"/wifi/connect", "application/json", strings.NewReader(`{"password":"pw"}`))
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("missing ssid: got %d, want 400", resp.StatusCode)
	}

	fc.wifiErr = errors.New("secrets required")
	resp, _ = http.PostForm(ts.URL+"/wifi/connect", url.Values{"ssid": {"Cafe"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("failed connect: got %d, want 502", resp.StatusCode)
	}

	if len(fc.wifi) != 2 || fc.wifi[0] != "Home/pw" || fc.wifi[1] != "Cafe/" {
		t.Errorf("wifi: got %v", fc.wifi)
	}
}

func TestProfileEndpoint(t *testing.T) {
	ts, _, fc := newTestServer(t)

	resp, _ := http.Get(ts.URL + "/profile.json")
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("no profile: got %d, want 404", resp.StatusCode)
	}

	fc.profile = json.RawMessage(`{"name":"Ada"}`)
	resp, _ = http.Get(ts.URL + "/profile.json")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"name":"Ada"}` {
		t.Errorf("profile: got %s", body)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	if sj := getStatus(t, ts); sj.Status.Screen != "main" {
		t.Errorf("Screen: got %q, want main", sj.Status.Screen)
	}

	tr.ShowCategory("TAKEN", schedule.CategoryCache{Valid: true, UpdatedAt: "01:00 PM"}, true)
	tr.SetOnline(false)

	sj := getStatus(t, ts)
	if sj.Status.Screen != "category" {
		t.Errorf("Screen: got %q, want category", sj.Status.Screen)
	}
	if sj.Status.View == nil || !sj.Status.View.Offline {
		t.Errorf("View: got %+v, want offline view", sj.Status.View)
	}
}
