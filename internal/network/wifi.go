package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"

	"github.com/sweeney/dose-dispenser/internal/kv"
)

// CredsKey is where remembered networks are persisted.
const CredsKey = "wifi_creds"

// Limits on remembered networks.
const (
	MaxCreds    = 3
	MaxSSID     = 32
	MaxPassword = 64
)

// ErrNoCreds is returned by AutoConnect when nothing is remembered.
var ErrNoCreds = errors.New("network: no saved wifi credentials")

// Credential is one remembered network.
type Credential struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// CredStore keeps the most recently used networks, newest first.
type CredStore struct {
	store kv.Store

	mu    sync.Mutex
	creds []Credential
}

// LoadCreds reads the remembered networks. A missing or unreadable value
// yields an empty list.
func LoadCreds(store kv.Store) *CredStore {
	s := &CredStore{store: store}
	raw, err := store.Get(CredsKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("network: load wifi creds: %v", err)
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.creds); err != nil {
		log.Printf("network: decode wifi creds: %v", err)
		s.creds = nil
	}
	if len(s.creds) > MaxCreds {
		s.creds = s.creds[:MaxCreds]
	}
	return s
}

// List returns the remembered networks, newest first.
func (s *CredStore) List() []Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Credential(nil), s.creds...)
}

// Add remembers a network at the front of the list, replacing an entry with
// the same SSID and forgetting the oldest when full.
func (s *CredStore) Add(ssid, password string) error {
	ssid = truncate(ssid, MaxSSID)
	password = truncate(password, MaxPassword)
	if ssid == "" {
		return errors.New("network: empty ssid")
	}

	s.mu.Lock()
	next := []Credential{{SSID: ssid, Password: password}}
	for _, c := range s.creds {
		if c.SSID != ssid {
			next = append(next, c)
		}
	}
	if len(next) > MaxCreds {
		next = next[:MaxCreds]
	}
	s.creds = next
	blob, err := json.Marshal(next)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("encode wifi creds: %w", err)
	}
	if err := s.store.Set(CredsKey, blob); err != nil {
		return fmt.Errorf("save wifi creds: %w", err)
	}
	return nil
}

// Connector joins a network.
type Connector interface {
	Connect(ctx context.Context, ssid, password string) error
}

// AutoConnect tries each remembered network in order and returns the first
// that connects, moving it to the front.
func AutoConnect(ctx context.Context, s *CredStore, conn Connector) (Credential, error) {
	creds := s.List()
	if len(creds) == 0 {
		return Credential{}, ErrNoCreds
	}
	var errs []error
	for _, c := range creds {
		log.Printf("network: trying %q", c.SSID)
		if err := conn.Connect(ctx, c.SSID, c.Password); err != nil {
			log.Printf("network: %q: %v", c.SSID, err)
			errs = append(errs, err)
			continue
		}
		if err := s.Add(c.SSID, c.Password); err != nil {
			log.Printf("network: %v", err)
		}
		return c, nil
	}
	return Credential{}, fmt.Errorf("no saved network connected: %w", errors.Join(errs...))
}

// RunFunc runs an external command and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLI connects through NetworkManager's command line client.
type NMCLI struct {
	Run RunFunc
}

// NewNMCLI returns a connector that shells out to nmcli.
func NewNMCLI() *NMCLI {
	return &NMCLI{Run: execRun}
}

// Connect joins ssid, using password when it is non-empty.
func (n *NMCLI) Connect(ctx context.Context, ssid, password string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	out, err := n.Run(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("nmcli connect %q: %w: %s", ssid, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
