package kv

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	s, err := OpenDisk(filepath.Join(t.TempDir(), "nvs"))
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}

	if err := s.Set("time_display", []byte("08:15 AM")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("time_display")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "08:15 AM" {
		t.Errorf("Get: got %q, want %q", got, "08:15 AM")
	}
}

func TestDiskStoreMissingKey(t *testing.T) {
	s, err := OpenDisk(filepath.Join(t.TempDir(), "nvs"))
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}

	_, err = s.Get("med_upcoming")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskStoreOverwriteAndReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nvs")
	s, err := OpenDisk(dir)
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	s.Set("stepper_slot", []byte("1"))
	s.Set("stepper_slot", []byte("4"))

	reopened, err := OpenDisk(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get("stepper_slot")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "4" {
		t.Errorf("got %q, want 4", got)
	}
}

func TestDiskStoreKeys(t *testing.T) {
	s, err := OpenDisk(filepath.Join(t.TempDir(), "nvs"))
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	s.Set("med_taken", []byte("{}"))
	s.Set("med_missed", []byte("{}"))

	keys := s.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "med_missed" || keys[1] != "med_taken" {
		t.Errorf("Keys: got %v", keys)
	}
}

func TestFakeStore(t *testing.T) {
	f := NewFakeStore()

	if _, err := f.Get("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	f.Set("x", []byte("1"))
	f.Set("x", []byte("2"))
	if f.WriteCount("x") != 2 {
		t.Errorf("WriteCount: got %d, want 2", f.WriteCount("x"))
	}

	f.SetError = errors.New("flash worn out")
	if err := f.Set("x", []byte("3")); err == nil {
		t.Error("expected SetError")
	}
	got, _ := f.Get("x")
	if string(got) != "2" {
		t.Errorf("failed Set must not store, got %q", got)
	}
}
