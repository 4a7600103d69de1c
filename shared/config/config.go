package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings shared by every order service. Services read it
// once at startup; environment variables override file values.
type Config struct {
	ServiceName string   `mapstructure:"service_name"`
	Env         string   `mapstructure:"env"`
	Port        string   `mapstructure:"port"`
	Transport   string   `mapstructure:"transport"`
	Kafka       Kafka    `mapstructure:"kafka"`
	AWS         AWS      `mapstructure:"aws"`
	Database    Database `mapstructure:"database"`
	Redis       Redis    `mapstructure:"redis"`
	Consumer    Consumer `mapstructure:"consumer"`
	OTLP        OTLP     `mapstructure:"otlp"`
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type AWS struct {
	Region      string `mapstructure:"region"`
	EndpointSNS string `mapstructure:"endpoint_sns"`
	EndpointSQS string `mapstructure:"endpoint_sqs"`
	SNSTopicArn string `mapstructure:"sns_topic_arn"`
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Consumer holds retry and retention tuning for the idempotent consumer
type Consumer struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxAttempts     uint64        `mapstructure:"max_attempts"`
	Retention       time.Duration `mapstructure:"retention"`
	PurgeInterval   time.Duration `mapstructure:"purge_interval"`
}

type OTLP struct {
	Endpoint string `mapstructure:"endpoint"`
}

// Read loads the configuration for a service. The lookup order is the
// environment (prefixed with the upper-cased service name, dashes as
// underscores), then an optional config file named after ENVIRONMENT, then
// defaults.
func Read(serviceName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName())
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix(serviceName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v, serviceName)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func configName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func envPrefix(serviceName string) string {
	return strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_"))
}

func setDefaults(v *viper.Viper, serviceName string) {
	v.SetDefault("service_name", serviceName)
	v.SetDefault("env", getEnv("ENV", "local"))
	v.SetDefault("port", getEnv("PORT", "8080"))
	v.SetDefault("transport", getEnv("TRANSPORT", "kafka"))

	v.SetDefault("kafka.brokers", []string{getEnv("KAFKA_BROKERS", "localhost:9092")})
	v.SetDefault("kafka.topic", getEnv("KAFKA_TOPIC", "order-events"))
	v.SetDefault("kafka.group_id", serviceName)

	v.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	v.SetDefault("aws.endpoint_sns", getEnv("AWS_ENDPOINT_URL_SNS", "http://localhost:4566"))
	v.SetDefault("aws.endpoint_sqs", getEnv("AWS_ENDPOINT_URL_SQS", "http://localhost:4566"))
	v.SetDefault("aws.sns_topic_arn", getEnv("SNS_TOPIC_ARN", "arn:aws:sns:us-east-1:000000000000:order-events.fifo"))
	v.SetDefault("aws.sqs_queue_url", getEnv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/"+serviceName+".fifo"))

	v.SetDefault("database.host", getEnv("DB_HOST", "localhost"))
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", getEnv("DB_USER", "postgres"))
	v.SetDefault("database.password", getEnv("DB_PASSWORD", "password"))
	v.SetDefault("database.database", getEnv("DB_NAME", "order_system"))
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.addr", getEnv("REDIS_ADDR", "localhost:6379"))
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("consumer.initial_interval", "200ms")
	v.SetDefault("consumer.max_interval", "30s")
	v.SetDefault("consumer.max_attempts", 5)
	v.SetDefault("consumer.retention", "168h")
	v.SetDefault("consumer.purge_interval", "1h")

	v.SetDefault("otlp.endpoint", getEnv("OTLP_ENDPOINT", "localhost:4318"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// DatabaseURL constructs a postgres connection URL from config
func (c *Config) DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
