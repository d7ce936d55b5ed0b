package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"synxronfiles/internal/service"
	"synxronfiles/internal/storage/s3"
)

const (
	AsyncTransportGRPC  = "grpc"
	AsyncTransportRedis = "redis"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	S3       s3.Config      `mapstructure:"S3"`
	Scanner  ScannerConfig  `mapstructure:"Scanner"`
	Files    FilesConfig    `mapstructure:"Files"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type ScannerConfig struct {
	Address        string        `mapstructure:"Address"`
	AsyncTransport string        `mapstructure:"AsyncTransport"`
	RedisAddr      string        `mapstructure:"RedisAddr"`
	RedisPassword  string        `mapstructure:"RedisPassword"`
	RedisDB        int           `mapstructure:"RedisDB"`
	RedisQueue     string        `mapstructure:"RedisQueue"`
	Timeout        time.Duration `mapstructure:"Timeout"`
}

type FilesConfig struct {
	MaxFileSize              int64 `mapstructure:"MaxFileSize"`
	MaxSecurityCheckFileSize int64 `mapstructure:"MaxSecurityCheckFileSize"`
	UseStreamToAntivirus     bool  `mapstructure:"UseStreamToAntivirus"`
	CopyConcurrency          int   `mapstructure:"CopyConcurrency"`
}

// Переменные окружения для ключей конфигурации
var envBindings = map[string]string{
	"Server.Port":            "HTTP_PORT",
	"Server.ShutdownTimeout": "SHUTDOWN_TIMEOUT",

	"Database.Host":     "DATABASE_HOST",
	"Database.Port":     "DATABASE_PORT",
	"Database.User":     "DATABASE_USER",
	"Database.Password": "DATABASE_PASSWORD",
	"Database.Name":     "DATABASE_NAME",
	"Database.SSLMode":  "DATABASE_SSLMODE",

	"S3.Endpoint":        "S3_ENDPOINT",
	"S3.Region":          "S3_REGION",
	"S3.Bucket":          "S3_BUCKET",
	"S3.AccessKeyID":     "S3_ACCESS_KEY_ID",
	"S3.SecretAccessKey": "S3_SECRET_ACCESS_KEY",
	"S3.UsePathStyle":    "S3_USE_PATH_STYLE",

	"Scanner.Address":        "SCANNER_ADDRESS",
	"Scanner.AsyncTransport": "SCANNER_ASYNC_TRANSPORT",
	"Scanner.RedisAddr":      "SCANNER_REDIS_ADDR",
	"Scanner.RedisPassword":  "SCANNER_REDIS_PASSWORD",
	"Scanner.RedisDB":        "SCANNER_REDIS_DB",
	"Scanner.RedisQueue":     "SCANNER_REDIS_QUEUE",
	"Scanner.Timeout":        "SCANNER_TIMEOUT",

	"Files.MaxFileSize":              "FILES_MAX_FILE_SIZE",
	"Files.MaxSecurityCheckFileSize": "FILES_MAX_SECURITY_CHECK_FILE_SIZE",
	"Files.UseStreamToAntivirus":     "FILES_USE_STREAM_TO_ANTIVIRUS",
	"Files.CopyConcurrency":          "FILES_COPY_CONCURRENCY",
}

// NewConfig читает файл конфигурации (если он есть) и переменные окружения.
// Переменные окружения имеют приоритет над файлом.
func NewConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("cannot read config from %s: %w", path, err)
			}
			// файла нет, работаем только с окружением
		}
	}

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
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.ShutdownTimeout", 15*time.Second)

	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.SSLMode", "disable")

	v.SetDefault("S3.Region", "us-east-1")
	v.SetDefault("S3.UsePathStyle", true)

	v.SetDefault("Scanner.AsyncTransport", AsyncTransportGRPC)
	v.SetDefault("Scanner.RedisQueue", "antivirus:scan_requests")
	v.SetDefault("Scanner.Timeout", 60*time.Second)

	v.SetDefault("Files.MaxFileSize", service.DefaultMaxFileSize)
	v.SetDefault("Files.MaxSecurityCheckFileSize", service.DefaultMaxSecurityCheckFileSize)
	v.SetDefault("Files.UseStreamToAntivirus", false)
	v.SetDefault("Files.CopyConcurrency", service.DefaultCopyConcurrency)
}

func (c *Config) Validate() error {
	if c.Database.Host == "" ||
		c.Database.User == "" ||
		c.Database.Password == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}

	if err := c.S3.Validate(); err != nil {
		return fmt.Errorf("invalid s3 configuration: %w", err)
	}

	if c.Scanner.Address == "" {
		return fmt.Errorf("scanner address is required")
	}
	switch c.Scanner.AsyncTransport {
	case AsyncTransportGRPC:
	case AsyncTransportRedis:
		if c.Scanner.RedisAddr == "" {
			return fmt.Errorf("scanner redis address is required for redis transport")
		}
	default:
		return fmt.Errorf("unknown scanner async transport %q", c.Scanner.AsyncTransport)
	}

	if err := c.Files.ServiceConfig().Validate(); err != nil {
		return fmt.Errorf("invalid files configuration: %w", err)
	}

	return nil
}

// ServiceConfig неизменяемые параметры оркестраторов
func (c FilesConfig) ServiceConfig() service.Config {
	return service.Config{
		MaxFileSize:              c.MaxFileSize,
		MaxSecurityCheckFileSize: c.MaxSecurityCheckFileSize,
		UseStreamToAntivirus:     c.UseStreamToAntivirus,
		CopyConcurrency:          c.CopyConcurrency,
	}
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL адрес базы для миграций
func (c *DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
