package config

// Config is the daemon configuration, decoded strictly: unknown fields are
// rejected so typos surface at load/reload time instead of silently doing
// nothing.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Alerts controls the delivery gateway and the registry window.
	Alerts AlertsConfig `json:"alerts"`

	// Telegram is only consulted when alerts.channel is "telegram".
	Telegram TelegramConfig `json:"telegram,omitempty"`

	// SettingsStore persists user notification preferences.
	SettingsStore SettingsStoreConfig `json:"settings_store,omitempty"`

	// Source is the todo backend the task list is fetched from.
	Source SourceConfig `json:"source"`

	// Refresh drives the periodic fetch-and-reconcile cycle.
	Refresh RefreshConfig `json:"refresh,omitempty"`
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

// AlertsConfig controls delivery and arming policy.
//
// Channel values: "desktop" (notify-send/osascript), "telegram", "none".
type AlertsConfig struct {
	Channel    string `json:"channel"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// SendTimeout bounds one delivery attempt.
	SendTimeout Duration `json:"send_timeout,omitempty"`
	// Lookahead caps how far out timers are armed (default "24h").
	Lookahead Duration `json:"lookahead,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// HandshakeTimeout bounds the initial getMe call.
	HandshakeTimeout Duration `json:"handshake_timeout,omitempty"`
}

// SettingsStoreConfig selects where notification preferences persist.
//
// Driver: "file", "sqlite", or ""/"none" for in-memory only.
type SettingsStoreConfig struct {
	Driver      string   `json:"driver,omitempty"`
	Path        string   `json:"path,omitempty"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"` // sqlite only
}

type SourceConfig struct {
	BaseURL  string   `json:"base_url"`
	Token    string   `json:"token,omitempty"`
	PageSize int      `json:"page_size,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
}

type RefreshConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron spec or "@every" interval (default "@every 1m").
	Schedule     string   `json:"schedule,omitempty"`
	FetchTimeout Duration `json:"fetch_timeout,omitempty"`
}
