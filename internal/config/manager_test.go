package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const yamlConfig = `
zabbix:
  url: https://zabbix.example.com
  api_key: secret
  timeout: 5s
telegram:
  token: "123:abc"
database:
  path: /var/lib/monbot/monbot.db
logging:
  level: debug
  console: true
reconcile:
  schedule: "*/10 * * * *"
problems:
  interval: 30s
notify:
  rate_per_sec: 3
  ops_urls:
    - discord://token@id
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", yamlConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Zabbix.URL != "https://zabbix.example.com" || cfg.Zabbix.Timeout != "5s" {
		t.Fatalf("zabbix = %+v", cfg.Zabbix)
	}
	if cfg.Reconcile.Schedule != "*/10 * * * *" {
		t.Fatalf("schedule = %q", cfg.Reconcile.Schedule)
	}
	if cfg.Notify == nil || cfg.Notify.RatePerSec != 3 || len(cfg.Notify.OpsURLs) != 1 {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json",
		`{"zabbix":{"url":"http://z","api_key":"k"},"telegram":{"token":"t"},"database":{"path":"x.db"},"logging":{"console":true},"reconcile":{},"problems":{}}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "t" || !cfg.Logging.Console {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", yamlConfig+"\nmystery: 1\n"))
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "mystery") {
		t.Fatalf("err = %v, want unknown-field rejection", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"zabbix":{"url":"u","api_key":"k"}} {"extra":true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing-data rejection")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"15s", 15 * time.Second, false},
		{" 2m ", 2 * time.Minute, false},
		{"-5s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: got %v, %v", tc.raw, got, err)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("test.field", "", 10*time.Second)
	if err != nil || got != 10*time.Second {
		t.Fatalf("got %v, %v", got, err)
	}
	got, err = ParseDurationOrDefault("test.field", "3s", 10*time.Second)
	if err != nil || got != 3*time.Second {
		t.Fatalf("got %v, %v", got, err)
	}
}
