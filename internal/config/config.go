package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Worker    WorkerConfig    `mapstructure:"worker"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue"     validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Render    RenderConfig    `mapstructure:"render"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" validate:"required"`
}

// WorkerConfig bounds one worker invocation and tunes the consumer
// loop. Poison-pill and retry thresholds live here rather than as
// constants so operators can adjust them without a deploy. A warning
// is logged once deliveries exceed WarnDeliveries; StageAttempts is
// the total number of tries per pipeline stage, including the first.
type WorkerConfig struct {
	LogLevel            string `mapstructure:"log_level"           validate:"required,oneof=debug info warn error"`
	MaxRuntimeSeconds   int    `mapstructure:"max_runtime_seconds" validate:"required,gt=0"`
	BatchSize           int    `mapstructure:"batch_size"          validate:"required,gt=0,lte=64"`
	PullTimeoutSecs     int    `mapstructure:"pull_timeout_seconds"  validate:"required,gt=0"`
	EmptyQueueSecs      int    `mapstructure:"empty_queue_seconds"   validate:"required,gt=0"`
	WarnDeliveries      int    `mapstructure:"warn_deliveries"     validate:"required,gt=0"`
	MaxDeliveries       int    `mapstructure:"max_deliveries"      validate:"required,gtfield=WarnDeliveries"`
	StageAttempts       int    `mapstructure:"stage_attempts"            validate:"required,gt=0,lte=10"`
	StageRetryDelaySecs int    `mapstructure:"stage_retry_delay_seconds" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// QueueConfig contains the queue transport settings.
type QueueConfig struct {
	URL           string `mapstructure:"url"            validate:"required"`
	Stream        string `mapstructure:"stream"         validate:"required"`
	Subject       string `mapstructure:"subject"        validate:"required"`
	Durable       string `mapstructure:"durable"        validate:"required"`
	NotifySubject string `mapstructure:"notify_subject" validate:"required"`
}

// LLMConfig contains Gemini integration settings shared by the topic
// extractor and the script generator.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}

// SpeechConfig contains speech-synthesis settings. Optional: a worker
// serving only text requests can run without it.
type SpeechConfig struct {
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	Model        string `mapstructure:"model"`
	Voice        string `mapstructure:"voice"`
}

// RenderConfig contains the video render service settings. Optional
// for the same reason as SpeechConfig.
type RenderConfig struct {
	BaseURL        string `mapstructure:"base_url"        validate:"omitempty,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// RetrievalConfig contains the reference retrieval service settings.
type RetrievalConfig struct {
	BaseURL        string `mapstructure:"base_url"        validate:"required,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}
