package config

// Config is the whole qctrack configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "720h").
// String values may reference the environment as ${VAR}.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Engine  EngineConfig  `json:"engine"`
	HTTP    HTTPConfig    `json:"http"`

	// Remote is the authoritative record service. Nil or an empty base_url
	// means the installation runs on the local cache and static inventory only.
	Remote *RemoteConfig `json:"remote,omitempty"`

	// Storage backs the local completion cache. Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`

	Digest    *DigestConfig    `json:"digest,omitempty"`
	Inventory *InventoryConfig `json:"inventory,omitempty"`
	Pprof     *PprofConfig     `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EngineConfig holds the installation policies of the scheduling engine.
type EngineConfig struct {
	// Timezone is the IANA zone "today" is computed in. Default UTC.
	Timezone     string `json:"timezone,omitempty"`
	SkipWeekends bool   `json:"skip_weekends"`
	// MaxOverdueAge hides overdue tasks older than this from due-task reports.
	// "0s" or omitted keeps all of them.
	MaxOverdueAge string `json:"max_overdue_age,omitempty"`
}

// RemoteConfig configures the client of the authoritative record service.
//
// Example:
//
//	"remote": { "base_url": "https://qc.example.org/api", "token": "${QC_TOKEN}", "timeout": "5s" }
type RemoteConfig struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token,omitempty"` // do not log
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Burst      int    `json:"burst,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/qctrack.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// CacheKey is the single well-known key of the local completion cache.
	CacheKey string `json:"cache_key,omitempty"`
}

type HTTPConfig struct {
	Addr         string `json:"addr"` // default: "127.0.0.1:8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
	// RequestLogs logs one line per request at info level (debug otherwise).
	RequestLogs bool `json:"request_logs,omitempty"`
}

// DigestConfig controls the scheduled overdue digest.
//
// Schedule accepts 5-field cron, 6-field cron with seconds, or descriptors
// such as "@daily". Sink is "log" (default) or "telegram".
type DigestConfig struct {
	Enabled  bool            `json:"enabled"`
	Schedule string          `json:"schedule"`
	Sink     string          `json:"sink,omitempty"`
	TopN     int             `json:"top_n,omitempty"`
	Telegram *TelegramTarget `json:"telegram,omitempty"`
}

// PprofConfig exposes the runtime profiler on a separate listener.
// A non-loopback addr requires a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
	Token   string `json:"token,omitempty"` // do not log
}

type TelegramTarget struct {
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// InventoryConfig is the static machine/worksheet directory.
//
// Source "static" forces it even when a remote service is configured;
// "auto" (default) uses it only without one.
type InventoryConfig struct {
	Source     string            `json:"source,omitempty"`
	Machines   []MachineConfig   `json:"machines"`
	Worksheets []WorksheetConfig `json:"worksheets"`
}

type MachineConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Location    string `json:"location,omitempty"`
	InstalledOn string `json:"installed_on,omitempty"`
}

type WorksheetConfig struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	Modality  string   `json:"modality,omitempty"`
	Frequency string   `json:"frequency"`
	StartDate string   `json:"start_date,omitempty"`
	Machines  []string `json:"machines"`
}

// UseStaticInventory reports whether the static directory should serve lookups.
func (c *Config) UseStaticInventory() bool {
	if c.Inventory == nil {
		return false
	}
	if c.Inventory.Source == "static" {
		return true
	}
	return c.Remote == nil || c.Remote.BaseURL == ""
}
