package config

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/faanross/simulacra_lsb/internal/logger"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

const (
	// DefaultDomain is the zone stego images are published under.
	DefaultDomain = "data.example.com."

	// DefaultDNSAddr is the address the DNS server binds to.
	DefaultDNSAddr = "127.0.0.1:5353"

	defaultTTL          = 60
	defaultDNSTimeout   = 5 * time.Second
	defaultChunkPayload = 144
	defaultConcurrency  = 4
)

// OutputConfig controls where stego images are written.
type OutputConfig struct {
	Dir    string
	Prefix string
}

// KeyConfig controls passphrase-derived keys.
type KeyConfig struct {
	Salt       string
	Iterations int
}

// DNSConfig controls the TXT record transport.
type DNSConfig struct {
	Domain       string
	Addr         string
	HTTPAddr     string // upload API; empty disables it
	Storage      string // JSON file; empty keeps records in memory
	ChunkPayload int    // raw bytes per TXT chunk
	TTL          uint32
	Timeout      time.Duration
	Retention    time.Duration // zero keeps published images forever
	Concurrency  int           // parallel chunk queries when fetching
}

// Config holds the tool's settings.
type Config struct {
	LogLevel uint32
	Output   OutputConfig
	Key      KeyConfig
	DNS      DNSConfig
}

// NewDefaultConfig creates a new Config with default settings.
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel: uint32(log.InfoLevel),
		Output:   OutputConfig{Prefix: spec.DEFAULT_PREFIX},
		Key: KeyConfig{
			Salt:       spec.DEFAULT_SALT,
			Iterations: spec.PBKDF2_ITERS,
		},
		DNS: DNSConfig{
			Domain:       DefaultDomain,
			Addr:         DefaultDNSAddr,
			ChunkPayload: defaultChunkPayload,
			TTL:          defaultTTL,
			Timeout:      defaultDNSTimeout,
			Concurrency:  defaultConcurrency,
		},
	}
}

// NewConfig creates a new Config with default settings and applies any
// settings from the given YAML file. An empty path yields the defaults.
func NewConfig(configFile string) (*Config, error) {
	config := NewDefaultConfig()
	if configFile == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", configFile)
	}

	if v.IsSet("log.level") {
		level, err := logger.ParseLevel(v.GetString("log.level"))
		if err != nil {
			return nil, err
		}
		config.LogLevel = level
	}

	if v.IsSet("output.dir") {
		config.Output.Dir = v.GetString("output.dir")
	}
	if v.IsSet("output.prefix") {
		config.Output.Prefix = v.GetString("output.prefix")
	}

	if v.IsSet("key.passphrase.salt") {
		config.Key.Salt = v.GetString("key.passphrase.salt")
	}
	if v.IsSet("key.passphrase.iterations") {
		config.Key.Iterations = v.GetInt("key.passphrase.iterations")
		if config.Key.Iterations <= 0 {
			return nil, errors.Errorf("key.passphrase.iterations must be positive, got %d", config.Key.Iterations)
		}
	}

	if v.IsSet("dns.domain") {
		config.DNS.Domain = v.GetString("dns.domain")
	}
	if v.IsSet("dns.addr") {
		config.DNS.Addr = v.GetString("dns.addr")
	}
	if v.IsSet("dns.http") {
		config.DNS.HTTPAddr = v.GetString("dns.http")
	}
	if v.IsSet("dns.storage") {
		config.DNS.Storage = v.GetString("dns.storage")
	}
	if v.IsSet("dns.chunk.payload") {
		config.DNS.ChunkPayload = v.GetInt("dns.chunk.payload")
	}
	if v.IsSet("dns.ttl") {
		config.DNS.TTL = v.GetUint32("dns.ttl")
	}
	if v.IsSet("dns.timeout") {
		timeout, err := time.ParseDuration(v.GetString("dns.timeout"))
		if err != nil {
			return nil, errors.Wrap(err, "dns.timeout")
		}
		config.DNS.Timeout = timeout
	}
	if v.IsSet("dns.retention") {
		retention, err := time.ParseDuration(v.GetString("dns.retention"))
		if err != nil {
			return nil, errors.Wrap(err, "dns.retention")
		}
		config.DNS.Retention = retention
	}
	if v.IsSet("dns.concurrency") {
		config.DNS.Concurrency = v.GetInt("dns.concurrency")
		if config.DNS.Concurrency <= 0 {
			return nil, errors.Errorf("dns.concurrency must be positive, got %d", config.DNS.Concurrency)
		}
	}

	return config, nil
}
