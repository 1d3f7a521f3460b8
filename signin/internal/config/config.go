package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/viper"

	common "github.com/telhawk-systems/cloudguard/common/config"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/retry"
	"github.com/telhawk-systems/cloudguard/signin/internal/activity"
	"github.com/telhawk-systems/cloudguard/signin/internal/classifier"
	"github.com/telhawk-systems/cloudguard/signin/internal/store"
)

// Router transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
	TransportSNS    = "sns"
	TransportKafka  = "kafka"
)

type Config struct {
	Server   common.ServerConfig  `mapstructure:"server"`
	Logging  common.LoggingConfig `mapstructure:"logging"`
	NATS     common.NATSConfig    `mapstructure:"nats"`
	AWS      common.AWSConfig     `mapstructure:"aws"`
	Kafka    common.KafkaConfig   `mapstructure:"kafka"`
	Activity activity.Config      `mapstructure:"activity"`
	Store    StoreConfig          `mapstructure:"store"`
	Counter  CounterConfig        `mapstructure:"counter"`
	Rules    classifier.Rules     `mapstructure:"rules"`
	Router   RouterConfig         `mapstructure:"router"`
	Ingest   IngestConfig         `mapstructure:"ingest"`
}

type StoreConfig struct {
	Backend       string                  `mapstructure:"backend"`
	AutoMigrate   bool                    `mapstructure:"auto_migrate"`
	PurgeInterval time.Duration           `mapstructure:"purge_interval"`
	Redis         common.RedisConfig      `mapstructure:"redis"`
	Postgres      common.PostgresConfig   `mapstructure:"postgres"`
	OpenSearch    common.OpenSearchConfig `mapstructure:"opensearch"`
	DynamoDB      store.DynamoDBConfig    `mapstructure:"dynamodb"`
}

type CounterConfig struct {
	Retry retry.Policy `mapstructure:"retry"`
}

type RouterConfig struct {
	Transport string       `mapstructure:"transport"`
	Subject   string       `mapstructure:"subject"`
	Retry     retry.Policy `mapstructure:"retry"`
	// DeadLetter publishes lost alerts to JetStream; requires NATS.
	DeadLetter bool      `mapstructure:"dead_letter"`
	SNS        SNSConfig `mapstructure:"sns"`
}

type SNSConfig struct {
	TopicARN string `mapstructure:"topic_arn"`
}

// IngestConfig controls the event intake paths.
type IngestConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// Subscribe joins the signin-workers queue group on core NATS.
	Subscribe bool `mapstructure:"subscribe"`

	// Kafka reads envelopes from kafka.topic.
	Kafka bool `mapstructure:"kafka"`

	// JetStream enables the durable consumer on signin.events.raw.
	JetStream  bool          `mapstructure:"jetstream"`
	Consumer   string        `mapstructure:"consumer"`
	MaxDeliver int           `mapstructure:"max_deliver"`
	AckWait    time.Duration `mapstructure:"ack_wait"`
	NakDelay   time.Duration `mapstructure:"nak_delay"`
}

// Load reads configuration from configPath (optional) and SIGNIN_*
// environment variables.
func Load(configPath string) (*Config, error) {
	v, err := common.NewViper("SIGNIN", configPath)
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	common.SetCommonDefaults(v, 8090)
	v.SetDefault("nats.name", "cloudguard-signin")
	v.SetDefault("kafka.topic", messaging.SubjectSigninEventsRaw)
	v.SetDefault("kafka.group_id", messaging.QueueSigninWorkers)

	act := activity.DefaultConfig()
	v.SetDefault("activity.identity_mode", string(act.IdentityMode))
	v.SetDefault("activity.retention", act.Retention)
	v.SetDefault("activity.sources", act.Sources)
	v.SetDefault("activity.detail_types", act.DetailTypes)

	v.SetDefault("store.backend", store.BackendMemory)
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("store.purge_interval", "1h")
	v.SetDefault("store.redis.url", "redis://localhost:6379/0")
	v.SetDefault("store.redis.max_retries", 3)
	v.SetDefault("store.redis.pool_size", 10)
	v.SetDefault("store.postgres.url", "")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "cloudguard")
	v.SetDefault("store.postgres.password", "cloudguard")
	v.SetDefault("store.postgres.database", "cloudguard")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.opensearch.url", "https://localhost:9200")
	v.SetDefault("store.opensearch.username", "admin")
	v.SetDefault("store.opensearch.password", "")
	v.SetDefault("store.opensearch.insecure", false)
	v.SetDefault("store.opensearch.index", store.DefaultOpenSearchIndex)
	v.SetDefault("store.dynamodb.table", store.DefaultDynamoDBTable)
	v.SetDefault("store.dynamodb.index", store.DefaultIdentityIndex)
	v.SetDefault("store.dynamodb.region", "")
	v.SetDefault("store.dynamodb.endpoint", "")

	setRetryDefaults(v, "counter.retry")

	rules := classifier.DefaultRules()
	v.SetDefault("rules.threshold", rules.Threshold)
	v.SetDefault("rules.window", rules.Window)
	v.SetDefault("rules.channel", rules.Channel)
	v.SetDefault("rules.targets", rules.Targets)

	v.SetDefault("router.transport", TransportNATS)
	v.SetDefault("router.subject", messaging.SubjectNotifyAlertsSignin)
	v.SetDefault("router.dead_letter", true)
	v.SetDefault("router.sns.topic_arn", "")
	setRetryDefaults(v, "router.retry")

	v.SetDefault("ingest.max_body_bytes", 1<<20)
	v.SetDefault("ingest.subscribe", false)
	v.SetDefault("ingest.kafka", false)
	v.SetDefault("ingest.jetstream", false)
	v.SetDefault("ingest.consumer", "signin-classifier")
	v.SetDefault("ingest.max_deliver", 3)
	v.SetDefault("ingest.ack_wait", "30s")
	v.SetDefault("ingest.nak_delay", "5s")
}

func setRetryDefaults(v *viper.Viper, prefix string) {
	p := retry.DefaultPolicy()
	v.SetDefault(prefix+".max_attempts", p.MaxAttempts)
	v.SetDefault(prefix+".initial_backoff", p.InitialBackoff)
	v.SetDefault(prefix+".max_backoff", p.MaxBackoff)
	v.SetDefault(prefix+".multiplier", p.Multiplier)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if _, err := activity.ParseMode(string(c.Activity.IdentityMode)); err != nil {
		return err
	}
	backends := []string{store.BackendMemory, store.BackendRedis, store.BackendPostgres, store.BackendDynamoDB, store.BackendOpenSearch}
	if !slices.Contains(backends, c.Store.Backend) {
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	transports := []string{TransportMemory, TransportNATS, TransportSNS, TransportKafka}
	if !slices.Contains(transports, c.Router.Transport) {
		return fmt.Errorf("unknown router transport %q", c.Router.Transport)
	}
	if c.Router.Transport == TransportSNS && c.Router.SNS.TopicARN == "" {
		return fmt.Errorf("router.sns.topic_arn is required for the sns transport")
	}
	if c.Router.Transport == TransportKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka transport")
	}
	if c.Ingest.Kafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for kafka ingestion")
	}
	if c.Rules.Threshold < 0 {
		return fmt.Errorf("rules.threshold must not be negative")
	}
	if c.Rules.Channel == "" {
		return fmt.Errorf("rules.channel must not be empty")
	}
	if c.Rules.Window <= 0 {
		return fmt.Errorf("rules.window must be positive")
	}
	return nil
}

// StoreOptions converts the store section for store.Open. Region and
// endpoint fall back to the shared aws section.
func (c *Config) StoreOptions() store.Options {
	ddb := c.Store.DynamoDB
	if ddb.Region == "" {
		ddb.Region = c.AWS.Region
	}
	if ddb.Endpoint == "" {
		ddb.Endpoint = c.AWS.Endpoint
	}
	return store.Options{
		Backend:     c.Store.Backend,
		AutoMigrate: c.Store.AutoMigrate,
		Redis:       c.Store.Redis,
		Postgres:    c.Store.Postgres,
		OpenSearch:  c.Store.OpenSearch,
		DynamoDB:    ddb,
	}
}
