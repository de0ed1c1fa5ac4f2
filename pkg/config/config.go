package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port     string         `mapstructure:"port"`
	MongoSQL DatabaseConfig `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// RedisConfig definition redis setting
// Addr 有值時直接連線單節點；否則走 sentinel
type RedisConfig struct {
	RedisDB int    `mapstructure:"redis_db"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// EngineConfig timeline reconcile & read tracking setting
type EngineConfig struct {
	DedupWindow         time.Duration `mapstructure:"dedup_window"`
	VisibilityThreshold float64       `mapstructure:"visibility_threshold"`
	DwellTime           time.Duration `mapstructure:"dwell_time"`
	BroadcastBuffer     int           `mapstructure:"broadcast_buffer"`
}

const (
	defaultDedupWindow         = 5 * time.Second
	defaultVisibilityThreshold = 0.5
	defaultDwellTime           = time.Second
	defaultBroadcastBuffer     = 500
)

// WithDefaults fill zero values
func (e EngineConfig) WithDefaults() EngineConfig {
	if e.DedupWindow <= 0 {
		e.DedupWindow = defaultDedupWindow
	}
	if e.VisibilityThreshold <= 0 || e.VisibilityThreshold > 1 {
		e.VisibilityThreshold = defaultVisibilityThreshold
	}
	if e.DwellTime <= 0 {
		e.DwellTime = defaultDwellTime
	}
	if e.BroadcastBuffer <= 0 {
		e.BroadcastBuffer = defaultBroadcastBuffer
	}
	return e
}
