package service

import "fmt"

const (
	DefaultMaxFileSize              int64 = 2 << 30
	DefaultMaxSecurityCheckFileSize int64 = 2 << 30
	DefaultCopyConcurrency                = 8
)

// Config параметры оркестраторов. Передается при создании и дальше не меняется.
type Config struct {
	MaxFileSize              int64
	MaxSecurityCheckFileSize int64
	UseStreamToAntivirus     bool
	CopyConcurrency          int
}

func DefaultConfig() Config {
	return Config{
		MaxFileSize:              DefaultMaxFileSize,
		MaxSecurityCheckFileSize: DefaultMaxSecurityCheckFileSize,
		CopyConcurrency:          DefaultCopyConcurrency,
	}
}

func (c Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxSecurityCheckFileSize < 0 {
		return fmt.Errorf("max security check file size must not be negative, got %d", c.MaxSecurityCheckFileSize)
	}
	if c.CopyConcurrency < 1 {
		return fmt.Errorf("copy concurrency must be at least 1, got %d", c.CopyConcurrency)
	}
	return nil
}
