package config

// Config is the whole monbot configuration.
//
// All durations are Go duration strings (e.g. "30s", "5m"). The file may be
// YAML or JSON; YAML is coerced to JSON so both go through the same strict
// decoder.
type Config struct {
	Zabbix    ZabbixConfig    `json:"zabbix"`
	Telegram  TelegramConfig  `json:"telegram"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Problems  ProblemsConfig  `json:"problems"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
}

// ZabbixConfig points at the monitoring system's JSON-RPC endpoint.
type ZabbixConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`

	// Timeout bounds each API call. Default: "10s".
	Timeout string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is the long-poll timeout. Default: "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path"`

	// BusyTimeout is the sqlite busy_timeout pragma. Default: "5s".
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ReconcileConfig controls the structure refresh loop.
type ReconcileConfig struct {
	// Schedule accepts a cron expression ("*/10 * * * *", "cron:0 * * * *",
	// "@hourly") or a fixed interval ("5m", "02:30"). Default: "5m".
	Schedule string `json:"schedule,omitempty"`
}

// ProblemsConfig controls the problem polling loop.
type ProblemsConfig struct {
	// Interval between problem snapshots. Default: "15s".
	Interval string `json:"interval,omitempty"`
}

// NotifyConfig controls outbound notification behavior.
//
// If the whole section is omitted, defaults apply (rate 1/sec per chat,
// no ops mirror).
type NotifyConfig struct {
	// RatePerSec caps Telegram sends per second (flood control).
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// OpsURLs are shoutrrr URLs that receive a plain-text copy of every
	// raised/resolved event (e.g. "discord://token@id").
	OpsURLs []string `json:"ops_urls,omitempty"`
}
