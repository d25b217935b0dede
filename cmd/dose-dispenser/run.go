package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/dose-dispenser/internal/backend"
	"github.com/sweeney/dose-dispenser/internal/config"
	"github.com/sweeney/dose-dispenser/internal/device"
	"github.com/sweeney/dose-dispenser/internal/journal"
	"github.com/sweeney/dose-dispenser/internal/kv"
	"github.com/sweeney/dose-dispenser/internal/mqtt"
	"github.com/sweeney/dose-dispenser/internal/network"
	"github.com/sweeney/dose-dispenser/internal/status"
	"github.com/sweeney/dose-dispenser/internal/web"
)

const probeTimeout = 3 * time.Second

func addRun(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dispenser daemon.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			return runDaemon(cfg)
		},
	}
	cmd.Flags().String("http", "", `HTTP status address (default ":8080", "off" disables)`)
	cmd.Flags().String("broker", "", "MQTT broker address (empty disables)")
	a.v.BindPFlag("http_addr", cmd.Flags().Lookup("http"))
	a.v.BindPFlag("mqtt_broker", cmd.Flags().Lookup("broker"))
	topLevel.AddCommand(cmd)
}

func runDaemon(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := kv.OpenDisk(cfg.StorePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	hw, closeHW, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer closeHW()

	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	httpAddr := cfg.HTTPAddr
	if httpAddr == "off" {
		httpAddr = ""
	}
	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:        cfg.DeviceID,
		Backend:         cfg.BackendURL,
		Broker:          cfg.Broker,
		HTTPAddr:        httpAddr,
		FetchIntervalMs: cfg.FetchInterval.Milliseconds(),
		HeartbeatMs:     cfg.HeartbeatInterval.Milliseconds(),
		Firmware:        cfg.Firmware,
	})
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}

	var pub mqtt.Publisher
	if cfg.Broker != "" {
		rp := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.Broker,
			ClientID:   "dose-dispenser-" + cfg.DeviceID,
			DeviceID:   cfg.DeviceID,
			Username:   cfg.MQTTUsername,
			Password:   cfg.MQTTPassword,
			BufferSize: cfg.MQTTBuffer,
			OnStatus:   tracker.SetMQTTConnected,
		})
		defer rp.Close()
		pub = rp
	}

	var probe network.ProbeFunc
	if addr := cfg.Probe(); addr != "" {
		probe = network.DialProbe(addr, probeTimeout)
	}
	var wifi network.Connector
	if !cfg.Simulate {
		wifi = network.NewNMCLI()
	}

	dev := device.New(device.Options{
		Now:   time.Now,
		Store: store,
		Backend: backend.New(backend.Config{
			BaseURL:  cfg.BackendURL,
			Token:    cfg.Token,
			DeviceID: cfg.DeviceID,
			Timeout:  cfg.RequestTimeout,
		}),
		Network:  network.NewMonitor(probe),
		Tracker:  tracker,
		Hardware: hw,
		Motion:   motionConfig(cfg),
		Vitals: device.Vitals{
			Firmware:      cfg.Firmware,
			BatteryLevel:  cfg.BatteryLevel,
			StorageFreeKb: cfg.StorageFreeKb,
			TemperatureC:  cfg.TemperatureC,
			RSSIPath:      network.WirelessPath,
		},
		WiFi:              wifi,
		Journal:           j,
		Publisher:         pub,
		AlertTimeout:      cfg.AlertTimeout,
		ReportTimeout:     cfg.RequestTimeout,
		FetchInterval:     cfg.FetchInterval,
		TimeSyncInterval:  cfg.TimeSyncInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ProbeInterval:     cfg.ProbeInterval,
	})
	dev.Boot()
	dev.PublishStatus("STARTUP", "")
	log.Printf("started: device=%s backend=%s broker=%s simulate=%v", cfg.DeviceID, cfg.BackendURL, cfg.Broker, cfg.Simulate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason, err := serve(context.Background(), dev, httpAddr, sigCh)
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}
	dev.PublishStatus("SHUTDOWN", reason)
	return err
}

// serve runs the device and the status server until a signal arrives or one
// of them fails. It returns the signal name, if any.
func serve(ctx context.Context, dev *device.Device, httpAddr string, sig <-chan os.Signal) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var reason string
	g.Go(func() error {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason = signalName(s)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	g.Go(func() error { return dev.Run(ctx) })

	if httpAddr != "" {
		srv := web.New(httpAddr, dev.Tracker, dev)
		g.Go(func() error {
			log.Printf("http status server listening on %s", httpAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	err := g.Wait()
	return reason, err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
