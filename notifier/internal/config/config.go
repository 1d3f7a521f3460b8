package config

import (
	"fmt"
	"maps"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	common "github.com/telhawk-systems/cloudguard/common/config"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/models"
	"github.com/telhawk-systems/cloudguard/common/retry"
)

// EnvSlackWebhookAlarmAWS holds the webhook of the default channel.
const EnvSlackWebhookAlarmAWS = "SLACK_WEBHOOK_ALARM_AWS"

type Config struct {
	Server  common.ServerConfig  `mapstructure:"server"`
	Logging common.LoggingConfig `mapstructure:"logging"`
	NATS    common.NATSConfig    `mapstructure:"nats"`
	Kafka   common.KafkaConfig   `mapstructure:"kafka"`
	AWS     common.AWSConfig     `mapstructure:"aws"`

	// Channels maps channel names to Slack webhook URLs.
	Channels map[string]string `mapstructure:"channels"`

	Slack      SlackConfig      `mapstructure:"slack"`
	Transports TransportsConfig `mapstructure:"transports"`
}

type SlackConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   retry.Policy  `mapstructure:"retry"`
}

// TransportsConfig selects where alerts are consumed from. More than one
// may be enabled.
type TransportsConfig struct {
	NATS  bool      `mapstructure:"nats"`
	Kafka bool      `mapstructure:"kafka"`
	SNS   SNSConfig `mapstructure:"sns"`
}

// SNSConfig controls the HTTP(S) subscription endpoint.
type SNSConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AutoConfirm visits the SubscribeURL of subscription confirmations.
	AutoConfirm bool `mapstructure:"auto_confirm"`

	// SubscriptionARN, when set, gets the Slack filter policy installed at
	// startup.
	SubscriptionARN string `mapstructure:"subscription_arn"`

	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// Loader keeps the viper instance so the channel map can be reloaded when
// the config file changes.
type Loader struct {
	v *viper.Viper
}

// Load reads configuration from configPath (optional) and NOTIFIER_*
// environment variables. SLACK_WEBHOOK_ALARM_AWS sets channels.alarm-aws.
func Load(configPath string) (*Config, *Loader, error) {
	v, err := common.NewViper("NOTIFIER", configPath)
	if err != nil {
		return nil, nil, err
	}
	setDefaults(v)
	if err := v.BindEnv("channels."+models.DefaultChannel, EnvSlackWebhookAlarmAWS); err != nil {
		return nil, nil, fmt.Errorf("failed to bind %s: %w", EnvSlackWebhookAlarmAWS, err)
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the file in use, or "" when running from defaults and
// environment only.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// WatchChannels calls onChange with the new channel map whenever the config
// file is written. A file that fails to decode is reported to onError and
// the previous mapping stays in effect. It returns false when there is no
// file to watch.
func (l *Loader) WatchChannels(onChange func(map[string]string), onError func(error)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(maps.Clone(cfg.Channels))
	})
	l.v.WatchConfig()
	return true
}

func setDefaults(v *viper.Viper) {
	common.SetCommonDefaults(v, 8091)
	v.SetDefault("nats.name", "cloudguard-notifier")
	v.SetDefault("kafka.topic", messaging.SubjectNotifyAlertsSignin)
	v.SetDefault("kafka.group_id", messaging.QueueSlackNotifier)

	v.SetDefault("slack.timeout", "10s")
	p := retry.DefaultPolicy()
	v.SetDefault("slack.retry.max_attempts", p.MaxAttempts)
	v.SetDefault("slack.retry.initial_backoff", p.InitialBackoff)
	v.SetDefault("slack.retry.max_backoff", p.MaxBackoff)
	v.SetDefault("slack.retry.multiplier", p.Multiplier)

	v.SetDefault("transports.nats", true)
	v.SetDefault("transports.kafka", false)
	v.SetDefault("transports.sns.enabled", false)
	v.SetDefault("transports.sns.auto_confirm", false)
	v.SetDefault("transports.sns.subscription_arn", "")
	v.SetDefault("transports.sns.max_body_bytes", 256*1024)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if !c.Transports.NATS && !c.Transports.Kafka && !c.Transports.SNS.Enabled {
		return fmt.Errorf("at least one transport must be enabled")
	}
	if c.Transports.Kafka && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required for the kafka transport")
	}
	if c.Slack.Timeout <= 0 {
		return fmt.Errorf("slack.timeout must be positive")
	}
	return nil
}
