package unistore

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
)

// Options configures one Storage instance. Every field is per-instance;
// nothing here is process-wide state.
type Options struct {
	// Mechanisms is the ordered list of backend identifiers to try. The
	// first supported one wins and stays selected for the connection's
	// lifetime. Empty means the default order: the embedded indexed
	// engine, the relational engines, the persistent key-value stores,
	// then session and in-memory.
	Mechanisms []string `yaml:"mechanisms"`

	// Size is a hint forwarded to backends that accept one.
	Size int64 `yaml:"size"`

	// AutoSchema allows adding stores at runtime when the schema carries
	// no explicit version.
	AutoSchema bool `yaml:"autoSchema"`

	// UseTextStore injects the reserved default text store.
	UseTextStore bool `yaml:"useTextStore"`

	// Path overrides the file location of embedded mechanisms.
	Path string `yaml:"path"`

	// DSN selects and configures the mysql mechanism.
	DSN string `yaml:"dsn"`

	// Redis connection settings.
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	RedisTimeout  time.Duration `yaml:"redisTimeout"`

	// DynamoDB connection settings.
	DynamoRegion    string `yaml:"dynamoRegion"`
	DynamoTable     string `yaml:"dynamoTable"`
	DynamoEndpoint  string `yaml:"dynamoEndpoint"`
	DynamoAccessKey string `yaml:"dynamoAccessKey"`
	DynamoSecretKey string `yaml:"dynamoSecretKey"`

	// EventBrokers and EventTopic attach a Kafka sink for committed
	// change events. In-process subscription works without them.
	EventBrokers []string `yaml:"eventBrokers"`
	EventTopic   string   `yaml:"eventTopic"`

	// Debug shortens diagnostic thresholds and loosens log throttling.
	Debug bool `yaml:"debug"`
}

// Option mutates Options in place.
type Option func(*Options)

// WithMechanisms fixes the backend probe order.
func WithMechanisms(mechanisms ...string) Option {
	return func(o *Options) { o.Mechanisms = mechanisms }
}

// WithSize sets the backend size hint.
func WithSize(size int64) Option {
	return func(o *Options) { o.Size = size }
}

// WithAutoSchema enables runtime store additions.
func WithAutoSchema() Option {
	return func(o *Options) { o.AutoSchema = true }
}

// WithTextStore injects the default text store.
func WithTextStore() Option {
	return func(o *Options) { o.UseTextStore = true }
}

// WithPath overrides the file location of embedded mechanisms.
func WithPath(path string) Option {
	return func(o *Options) { o.Path = path }
}

// WithDSN configures the mysql mechanism.
func WithDSN(dsn string) Option {
	return func(o *Options) { o.DSN = dsn }
}

// WithRedis configures the redis mechanism.
func WithRedis(addr, password string, db int) Option {
	return func(o *Options) {
		o.RedisAddr = addr
		o.RedisPassword = password
		o.RedisDB = db
	}
}

// WithDynamoDB configures the dynamodb mechanism.
func WithDynamoDB(region, table string) Option {
	return func(o *Options) {
		o.DynamoRegion = region
		o.DynamoTable = table
	}
}

// WithEventSink attaches a Kafka sink for committed change events.
func WithEventSink(brokers []string, topic string) Option {
	return func(o *Options) {
		o.EventBrokers = brokers
		o.EventTopic = topic
	}
}

// WithDebug enables debug diagnostics.
func WithDebug() Option {
	return func(o *Options) { o.Debug = true }
}

// OptionsFromYAML parses an Options record from YAML.
func OptionsFromYAML(data []byte) (*Options, error) {
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, core.WrapError(core.KindArgument, err, "invalid options YAML")
	}
	return &o, nil
}

// backendConfig projects the options onto the backend probe configuration.
func (o *Options) backendConfig(name string) backend.Config {
	return backend.Config{
		Name:            name,
		Path:            o.Path,
		Size:            o.Size,
		DSN:             o.DSN,
		Addr:            o.RedisAddr,
		Password:        o.RedisPassword,
		DB:              o.RedisDB,
		DialTimeout:     o.RedisTimeout,
		Region:          o.DynamoRegion,
		Table:           o.DynamoTable,
		Endpoint:        o.DynamoEndpoint,
		AccessKeyID:     o.DynamoAccessKey,
		SecretAccessKey: o.DynamoSecretKey,
		Debug:           o.Debug,
	}
}
