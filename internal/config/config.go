package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"careerforge"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"CAREERFORGE_ADDRESS" default:":3443"`
	MetricsAddress  string `envconfig:"CAREERFORGE_METRICS_ADDRESS" default:":8080"`
	BaseUrl         string `envconfig:"CAREERFORGE_BASE_URL" default:"https://localhost:3443"`
	LogLevel        string `envconfig:"CAREERFORGE_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"CAREERFORGE_MIGRATIONS_FOLDER" default:""`

	Kafka      kafkaConfig
	Providers  providerConfig
	Dispatcher dispatcherConfig
	Quota      quotaConfig
	RateLimit  rateLimitConfig
	JobFeed    jobFeedConfig
	Interview  interviewConfig
}

type kafkaConfig struct {
	Brokers  []string `envconfig:"CAREERFORGE_KAFKA_BROKERS" default:""`
	Topic    string   `envconfig:"CAREERFORGE_KAFKA_TOPIC" default:"careerforge.events"`
	ClientID string   `envconfig:"CAREERFORGE_KAFKA_CLIENT_ID" default:"careerforge-api"`
}

type providerConfig struct {
	ExtractionURL   string        `envconfig:"CAREERFORGE_EXTRACTION_URL" default:"http://localhost:9001"`
	AnalysisURL     string        `envconfig:"CAREERFORGE_ANALYSIS_URL" default:"http://localhost:9002"`
	JobSearchURL    string        `envconfig:"CAREERFORGE_JOB_SEARCH_URL" default:"http://localhost:9003"`
	ConversationURL string        `envconfig:"CAREERFORGE_CONVERSATION_URL" default:"http://localhost:9004"`
	BillingURL      string        `envconfig:"CAREERFORGE_BILLING_URL" default:""`
	Timeout         time.Duration `envconfig:"CAREERFORGE_PROVIDER_TIMEOUT" default:"30s"`
}

type dispatcherConfig struct {
	Workers      int           `envconfig:"CAREERFORGE_DISPATCHER_WORKERS" default:"8"`
	PollInterval time.Duration `envconfig:"CAREERFORGE_DISPATCHER_POLL_INTERVAL" default:"1s"`
	TaskTimeout  time.Duration `envconfig:"CAREERFORGE_DISPATCHER_TASK_TIMEOUT" default:"2m"`
	MaxAttempts  int           `envconfig:"CAREERFORGE_DISPATCHER_MAX_ATTEMPTS" default:"5"`
	BackoffBase  time.Duration `envconfig:"CAREERFORGE_DISPATCHER_BACKOFF_BASE" default:"2s"`
	BackoffMax   time.Duration `envconfig:"CAREERFORGE_DISPATCHER_BACKOFF_MAX" default:"5m"`
}

type quotaConfig struct {
	DefaultCredits          int64 `envconfig:"CAREERFORGE_QUOTA_CREDITS" default:"30"`
	DefaultInterviewMinutes int64 `envconfig:"CAREERFORGE_QUOTA_INTERVIEW_MINUTES" default:"60"`
	DefaultJobMatches       int64 `envconfig:"CAREERFORGE_QUOTA_JOB_MATCHES" default:"200"`
	PeriodDays              int   `envconfig:"CAREERFORGE_QUOTA_PERIOD_DAYS" default:"30"`
}

type rateLimitConfig struct {
	EventsPerSecond float64 `envconfig:"CAREERFORGE_RATE_EVENTS_PER_SECOND" default:"5"`
	Burst           int     `envconfig:"CAREERFORGE_RATE_BURST" default:"10"`
}

type jobFeedConfig struct {
	RefreshInterval time.Duration `envconfig:"CAREERFORGE_JOBFEED_REFRESH_INTERVAL" default:"24h"`
	DailyInterval   time.Duration `envconfig:"CAREERFORGE_JOBFEED_DAILY_INTERVAL" default:"24h"`
	SweepInterval   time.Duration `envconfig:"CAREERFORGE_JOBFEED_SWEEP_INTERVAL" default:"15m"`
	NotifyPerSecond float64       `envconfig:"CAREERFORGE_JOBFEED_NOTIFY_PER_SECOND" default:"10"`
	NotifyBurst     int           `envconfig:"CAREERFORGE_JOBFEED_NOTIFY_BURST" default:"20"`
}

type interviewConfig struct {
	TickInterval time.Duration `envconfig:"CAREERFORGE_INTERVIEW_TICK_INTERVAL" default:"1s"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration suitable for tests: an in-memory sqlite
// database and conservative dispatcher settings.
func NewDefault() *Config {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		panic(err)
	}
	c.Database.Type = "sqlite"
	c.Database.Name = "file::memory:?cache=shared"
	return c
}
