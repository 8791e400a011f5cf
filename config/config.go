package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string          `mapstructure:"env"`
	LogLevel       string          `mapstructure:"log_level"`
	LogType        string          `mapstructure:"log_type"`
	ServiceName    string          `mapstructure:"service_name"`
	Version        string          `mapstructure:"version"`
	WorkerSettings *WorkerConfig   `mapstructure:"worker"`
	BrowserSetting *BrowserConfig  `mapstructure:"browser"`
	CacheSettings  *CacheConfig    `mapstructure:"cache"`
	DbSettings     *DatabaseConfig `mapstructure:"database"`
	KafkaSettings  *KafkaConfig    `mapstructure:"kafka"`
	S3Settings     *S3Config       `mapstructure:"s3"`
}

type WorkerConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`
}

type BrowserConfig struct {
	LoginURL       string        `mapstructure:"login_url"`
	SearchURL      string        `mapstructure:"search_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	BinaryPaths    []string      `mapstructure:"binary_paths"`
	LoginTimeout   time.Duration `mapstructure:"login_timeout"`
	ScrollCap      int           `mapstructure:"scroll_cap"`
	MinKeystroke   time.Duration `mapstructure:"min_keystroke"`
	MaxKeystroke   time.Duration `mapstructure:"max_keystroke"`
	PostSubmitWait time.Duration `mapstructure:"post_submit_wait"`
}

type CacheConfig struct {
	Servers       string        `mapstructure:"servers"`
	RequestWindow time.Duration `mapstructure:"request_window"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
	Consumer *ConsumerConfig `mapstructure:"consumer"`
}

type ProducerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type ConsumerConfig struct {
	ReadTopicName    string        `mapstructure:"read_topic_name"`
	Brokers          string        `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	ReadBatchTimeout time.Duration `mapstructure:"read_batch_timeout"`
}

type S3Config struct {
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

func MustLoad() *Config {
	cfg, err := Load(path.Join(".", "config.yaml"))
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return cfg
}

// Load reads the yaml file at configPath, overlays environment variables and fills in defaults for
// everything the file leaves out.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "debug")
	v.SetDefault("log_type", "text")
	v.SetDefault("service_name", "lead-scrape-worker")

	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.session_timeout", 15*time.Minute)
	v.SetDefault("worker.restart_delay", 3*time.Minute)

	v.SetDefault("browser.login_url", "https://www.linkedin.com/login")
	v.SetDefault("browser.search_url", "https://www.linkedin.com/search/results/people/")
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.binary_paths", []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
	})
	v.SetDefault("browser.login_timeout", 8*time.Second)
	v.SetDefault("browser.scroll_cap", 5)
	v.SetDefault("browser.min_keystroke", 50*time.Millisecond)
	v.SetDefault("browser.max_keystroke", 150*time.Millisecond)
	v.SetDefault("browser.post_submit_wait", 2*time.Second)

	v.SetDefault("cache.request_window", time.Hour)

	v.SetDefault("database.port", "3306")
	v.SetDefault("database.conn_max_lifetime", 3*time.Minute)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("kafka.producer.max_attempts", 3)
	v.SetDefault("kafka.producer.batch_size", 10)
	v.SetDefault("kafka.producer.batch_timeout", 5*time.Second)
	v.SetDefault("kafka.producer.read_timeout", 10*time.Second)
	v.SetDefault("kafka.producer.write_timeout", 10*time.Second)
	v.SetDefault("kafka.producer.required_acks", 1)
	v.SetDefault("kafka.consumer.max_wait", 10*time.Second)
	v.SetDefault("kafka.consumer.read_batch_timeout", 10*time.Second)
}
