package models

// MConfig Structure
type MConfig struct {
	Name        string           `yaml:"name"`
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	LogLevel    string           `yaml:"log_level"`
	LogFile     string           `yaml:"log_file"`
	Environment string           `yaml:"environment"` // "dev" or "prod"
	Auth        MAuthConfig      `yaml:"auth"`
	WebSocket   MWebSocketConfig `yaml:"websocket"`
	Storage     MStorageConfig   `yaml:"storage"`
}

type MAuthConfig struct {
	DevToken  string         `yaml:"dev_token"` // accepted only when environment is "dev"
	DevUserID int64          `yaml:"dev_user_id"`
	Tokens    []MTokenConfig `yaml:"tokens"`
}

type MTokenConfig struct {
	Token    string `yaml:"token"`
	UserID   int64  `yaml:"user_id"`
	Username string `yaml:"username"` // Optional
}

type MWebSocketConfig struct {
	ReadBufferSize  int   `yaml:"read_buffer_size"`
	WriteBufferSize int   `yaml:"write_buffer_size"`
	SendQueueSize   int   `yaml:"send_queue_size"`
	PongWaitSeconds int   `yaml:"pong_wait_seconds"`
	MaxMessageSize  int64 `yaml:"max_message_size"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // "sqlite", "postgres" or "none"
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	JournalQueueSize   int    `yaml:"journal_queue_size"`
	RetentionDays      int    `yaml:"retention_days"`
}
