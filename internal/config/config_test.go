package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAddressIPv4(t *testing.T) {
	addr, err := ParseAddress("ip4://127.0.0.1:6502")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if addr.Scheme != "ip4" || addr.Host != "127.0.0.1" || addr.Port != 6502 {
		t.Errorf("unexpected parse result: %+v", addr)
	}
	if addr.Network() != "tcp4" {
		t.Errorf("expected tcp4 network, got %s", addr.Network())
	}
}

func TestParseAddressIPv6(t *testing.T) {
	addr, err := ParseAddress("ip6://[::1]:6502")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if addr.Scheme != "ip6" || addr.Host != "::1" || addr.Port != 6502 {
		t.Errorf("unexpected parse result: %+v", addr)
	}
	if addr.Network() != "tcp6" {
		t.Errorf("expected tcp6 network, got %s", addr.Network())
	}
}

func TestParseAddressRejectsBadScheme(t *testing.T) {
	if _, err := ParseAddress("http://127.0.0.1:6502"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestParseAddressRejectsMissingScheme(t *testing.T) {
	if _, err := ParseAddress("127.0.0.1:6502"); err == nil {
		t.Error("expected error for missing scheme")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.BinaryMonitorServerAddress != DefaultAddress {
		t.Errorf("expected default address %q, got %q", DefaultAddress, cfg.BinaryMonitorServerAddress)
	}
	addr, err := cfg.Address()
	if err != nil {
		t.Fatalf("default address failed to parse: %v", err)
	}
	if addr.Port != 6502 {
		t.Errorf("expected default port 6502, got %d", addr.Port)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "galago.yaml")
	content := "binary_monitor_server: true\nbinary_monitor_server_address: \"ip4://0.0.0.0:7000\"\nverbose: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !cfg.BinaryMonitorServer {
		t.Error("expected binary_monitor_server=true")
	}
	if cfg.BinaryMonitorServerAddress != "ip4://0.0.0.0:7000" {
		t.Errorf("unexpected address: %s", cfg.BinaryMonitorServerAddress)
	}
	if !cfg.Verbose {
		t.Error("expected verbose=true")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/path/galago.yaml"); err == nil {
		t.Error("expected error loading missing file")
	}
}
