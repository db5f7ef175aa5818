package config

// Config holds the backend service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	AssemblyAI AssemblyAIConfig `mapstructure:"assemblyai" validate:"required"`
	Gemini     GeminiConfig     `mapstructure:"gemini" validate:"required"`
	Telegram   BotTokenConfig   `mapstructure:"telegram" validate:"required"`
	Bot        BotClientConfig  `mapstructure:"bot" validate:"required"`
	Tasks      TaskConfig       `mapstructure:"tasks" validate:"required"`
}

// BotConfig holds the bot service configuration.
type BotConfig struct {
	Server   ServerConfig        `mapstructure:"server" validate:"required"`
	Telegram TelegramConfig      `mapstructure:"telegram" validate:"required"`
	Backend  BackendClientConfig `mapstructure:"backend" validate:"required"`
	Gemini   GeminiConfig        `mapstructure:"gemini" validate:"required"`
	Auth     BotAuthConfig       `mapstructure:"auth" validate:"required"`
	Queue    QueueConfig         `mapstructure:"queue"`
	Messages MessageConfig       `mapstructure:"messages"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains the backend's shared secrets: APIKey guards the
// /api/v1 surface, WebhookSecret authenticates inbound provider callbacks.
type AuthConfig struct {
	APIKey        string `mapstructure:"api_key" validate:"required,min=16"`
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required,min=16"`
}

// AssemblyAIConfig contains transcription provider settings.
// WebhookBaseURL is the public base URL of this backend, used to build the
// provider callback URL with correlation parameters.
type AssemblyAIConfig struct {
	APIKey         string `mapstructure:"api_key" validate:"required"`
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	WebhookBaseURL string `mapstructure:"webhook_base_url" validate:"required,url"`
	DefaultModel   string `mapstructure:"default_model" validate:"required"`
}

// GeminiConfig contains LLM settings.
type GeminiConfig struct {
	APIKey    string `mapstructure:"api_key" validate:"required"`
	ModelName string `mapstructure:"model_name" validate:"required"`
}

// BotClientConfig points the backend at the bot service's internal API.
type BotClientConfig struct {
	BaseURL     string `mapstructure:"base_url" validate:"required,url"`
	SecretToken string `mapstructure:"secret_token" validate:"required,min=16"`
}

// TaskConfig contains the per-category concurrency limits and retention
// window for the task manager.
type TaskConfig struct {
	TranscriptionLimit int `mapstructure:"transcription_limit" validate:"required,gt=0"`
	ReportLimit        int `mapstructure:"report_limit" validate:"required,gt=0"`
	DefaultLimit       int `mapstructure:"default_limit" validate:"required,gt=0"`
	RetentionMinutes   int `mapstructure:"retention_minutes" validate:"required,gt=0"`
}

// BotTokenConfig carries just the bot token, for the backend's direct
// message delivery on the webhook path.
type BotTokenConfig struct {
	BotToken string `mapstructure:"bot_token" validate:"required"`
}

// TelegramConfig contains Telegram Bot API settings. WebhookSecret is the
// value Telegram echoes in X-Telegram-Bot-Api-Secret-Token.
type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token" validate:"required"`
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required,min=16"`
}

// BackendClientConfig points the bot at the backend's API.
type BackendClientConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key" validate:"required,min=16"`
}

// BotAuthConfig contains the secret guarding the bot's internal endpoints
// (/process_message, /send_message_to_user).
type BotAuthConfig struct {
	SecretToken string `mapstructure:"secret_token" validate:"required,min=16"`
}

// QueueConfig controls the single-flight manager's duplicate policy.
type QueueConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MessageConfig overrides user-facing message templates. Empty fields keep
// the built-in defaults.
type MessageConfig struct {
	Processing      string `mapstructure:"processing"`
	ProcessingAudio string `mapstructure:"processing_audio"`
	AlreadyRunning  string `mapstructure:"already_running"`
	CancelledByUser string `mapstructure:"cancelled_by_user"`
	Rejected        string `mapstructure:"rejected"`
	AgentFailure    string `mapstructure:"agent_failure"`
	STTFailure      string `mapstructure:"stt_failure"`
	CancelButton    string `mapstructure:"cancel_button"`
}
