package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/dose-dispenser/internal/backend"
	"github.com/sweeney/dose-dispenser/internal/config"
	"github.com/sweeney/dose-dispenser/internal/device"
	"github.com/sweeney/dose-dispenser/internal/gpio"
	"github.com/sweeney/dose-dispenser/internal/kv"
	"github.com/sweeney/dose-dispenser/internal/motion"
	"github.com/sweeney/dose-dispenser/internal/mqtt"
	"github.com/sweeney/dose-dispenser/internal/network"
	"github.com/sweeney/dose-dispenser/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("NetworkInfo: got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.SSID != "" {
		t.Errorf("SSID: got %q, want empty", info.SSID)
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestOpenHardwareSimulated(t *testing.T) {
	hw, closeHW, err := openHardware(config.Config{Simulate: true})
	if err != nil {
		t.Fatalf("openHardware: %v", err)
	}
	defer closeHW()

	if _, ok := hw.Stepper.(*gpio.FakeStepper); !ok {
		t.Errorf("Stepper: got %T, want fake", hw.Stepper)
	}
	if _, ok := hw.Sound.(*gpio.FakeSound); !ok {
		t.Errorf("Sound: got %T, want fake", hw.Sound)
	}
}

func TestMotionConfig(t *testing.T) {
	got := motionConfig(config.Config{
		StepsPerRev: 4096,
		Slots:       7,
		OpenAngle:   90,
		ClosedAngle: 170,
	})
	if got.StepsPerRev != 4096 || got.Slots != 7 || got.OpenAngle != 90 || got.ClosedAngle != 170 {
		t.Errorf("motionConfig: got %+v", got)
	}
	if got.IRSettle != motion.DefaultConfig().IRSettle {
		t.Errorf("IRSettle: got %v, want default", got.IRSettle)
	}
}

func newTestDevice(pub mqtt.Publisher) *device.Device {
	return device.New(device.Options{
		Now:     time.Now,
		Store:   kv.NewFakeStore(),
		Backend: backend.New(backend.Config{BaseURL: "http://127.0.0.1:1", DeviceID: "dev1"}),
		Network: network.NewMonitor(nil),
		Tracker: status.NewTracker(time.Now(), status.Config{DeviceID: "dev1"}),
		Hardware: device.Hardware{
			Stepper:  &gpio.FakeStepper{},
			Servo:    &gpio.FakeServo{},
			Presence: gpio.NewFakePresence(false),
			Sound:    &gpio.FakeSound{},
		},
		Motion:    motion.DefaultConfig(),
		Publisher: pub,
	})
}

func TestServeStopsOnSignal(t *testing.T) {
	pub := &mqtt.FakePublisher{}
	dev := newTestDevice(pub)
	dev.Boot()

	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM

	done := make(chan struct{})
	var reason string
	var err error
	go func() {
		reason, err = serve(context.Background(), dev, "", sig)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after a signal")
	}
	if err != nil {
		t.Errorf("serve: %v", err)
	}
	if reason != "SIGTERM" {
		t.Errorf("reason: got %q, want SIGTERM", reason)
	}

	dev.PublishStatus("SHUTDOWN", reason)
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Reason != "SIGTERM" {
		t.Fatalf("system events: got %+v", pub.SystemEvents)
	}
	if !strings.Contains(string(pub.SystemEvents[0].RawPayload), `"event":"SHUTDOWN"`) {
		t.Errorf("payload: got %s", pub.SystemEvents[0].RawPayload)
	}
}

// execute runs the CLI with simulated hardware against a temporary data dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--simulate", "--data-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMoveSlotPersists(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "move-slot", "3")
	if err != nil {
		t.Fatalf("move-slot: %v", err)
	}
	if out != "slot 3\n" {
		t.Errorf("output: got %q", out)
	}

	out, err = execute(t, dir, "print-state")
	if err != nil {
		t.Fatalf("print-state: %v", err)
	}
	if !strings.Contains(out, "slot:  3") {
		t.Errorf("print-state should show slot 3:\n%s", out)
	}
	if !strings.Contains(out, "no saved networks") {
		t.Errorf("print-state should report no networks:\n%s", out)
	}
}

func TestMoveSlotRejectsText(t *testing.T) {
	if _, err := execute(t, t.TempDir(), "move-slot", "three"); err == nil {
		t.Error("expected error for a non-numeric slot")
	}
}

func TestServoRange(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, dir, "servo", "200"); err == nil {
		t.Error("expected error for 200 degrees")
	}
	if _, err := execute(t, dir, "servo", "90"); err != nil {
		t.Errorf("servo 90: %v", err)
	}
}

func TestWiFiAddAndList(t *testing.T) {
	dir := t.TempDir()

	if _, err := execute(t, dir, "wifi", "list"); err == nil {
		t.Error("expected error with no saved networks")
	}
	if _, err := execute(t, dir, "wifi", "add", "home", "secret"); err != nil {
		t.Fatalf("wifi add: %v", err)
	}
	if _, err := execute(t, dir, "wifi", "add", "cafe"); err != nil {
		t.Fatalf("wifi add: %v", err)
	}

	out, err := execute(t, dir, "wifi", "list")
	if err != nil {
		t.Fatalf("wifi list: %v", err)
	}
	if out != "cafe\nhome\n" {
		t.Errorf("wifi list: got %q, want most recent first", out)
	}
}

func TestHistoryEmpty(t *testing.T) {
	out, err := execute(t, t.TempDir(), "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if out != "no history\n" {
		t.Errorf("history: got %q", out)
	}
}

func TestRunRequiresDeviceID(t *testing.T) {
	t.Setenv("DISPENSER_DEVICE_ID", "")
	_, err := execute(t, t.TempDir(), "run")
	if err == nil || !strings.Contains(err.Error(), "device_id is required") {
		t.Errorf("run: got %v, want device_id error", err)
	}
}
