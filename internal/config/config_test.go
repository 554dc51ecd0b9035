package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
stationdaq:
  ingress:
    interface: "eth0"
    ip: "10.0.0.1"
    nof_threads: 2
  log:
    level: "debug"
    format: "text"
  raw:
    nof_antennas: 256
    nof_pols: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ingress.Interface != "eth0" {
		t.Errorf("expected interface eth0, got %s", cfg.Ingress.Interface)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Raw.NofAntennas != 256 {
		t.Errorf("expected 256 antennas, got %d", cfg.Raw.NofAntennas)
	}
}

func TestLoadMissingInterfaceFails(t *testing.T) {
	path := writeConfig(t, `
stationdaq:
  ingress:
    nof_threads: 1
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing ingress.interface, got nil")
	}
}

func TestLoadInvalidNofPolsFails(t *testing.T) {
	path := writeConfig(t, `
stationdaq:
  ingress:
    interface: "eth0"
  raw:
    nof_pols: 3
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for raw.nof_pols=3, got nil")
	}
}

func TestLoadDefaultsAssignsPerFamilyPorts(t *testing.T) {
	path := writeConfig(t, `
stationdaq:
  ingress:
    interface: "eth0"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cases := []struct {
		name string
		got  int
		want int
	}{
		{"raw", cfg.Raw.Port, 4660},
		{"burst_channel", cfg.BurstChannel.Port, 4661},
		{"continuous_channel", cfg.ContinuousChannel.Port, 4662},
		{"integrated_channel", cfg.IntegratedChannel.Port, 4663},
		{"burst_beam", cfg.BurstBeam.Port, 4664},
		{"integrated_beam", cfg.IntegratedBeam.Port, 4665},
		{"station_beam", cfg.StationBeam.Port, 4666},
		{"antenna_buffer", cfg.AntennaBuffer.Port, 4667},
		{"correlator", cfg.Correlator.Port, 4668},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: expected default port %d, got %d", c.name, c.want, c.got)
		}
	}
}

func TestLoadDefaultsAssignsAmbientDefaults(t *testing.T) {
	path := writeConfig(t, `
stationdaq:
  ingress:
    interface: "eth0"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Ingress.NofThreads != 1 {
		t.Errorf("expected default nof_threads 1, got %d", cfg.Ingress.NofThreads)
	}
	if cfg.Metrics.Listen != ":9091" {
		t.Errorf("expected default metrics listen :9091, got %s", cfg.Metrics.Listen)
	}
	if cfg.StationBeam.MaxFileSizeBytes != 4*1024*1024*1024 {
		t.Errorf("expected default station_beam max_file_size_bytes, got %d", cfg.StationBeam.MaxFileSizeBytes)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
stationdaq:
  ingress:
    interface: "eth0"
  log:
    level: "info"
`)

	os.Setenv("STATIONDAQ_LOG_LEVEL", "debug")
	defer os.Unsetenv("STATIONDAQ_LOG_LEVEL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug from env override, got %s", cfg.Log.Level)
	}
}
