package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// profile is the optional YAML settings file. It fills in only what neither a
// flag nor the environment set.
type profile struct {
	API         string        `yaml:"api"`
	Channel     string        `yaml:"channel"`
	Transport   string        `yaml:"transport"`
	Token       string        `yaml:"token"`
	JWTSecret   string        `yaml:"jwt_secret"`
	Redis       []string      `yaml:"redis"`
	Brokers     []string      `yaml:"brokers"`
	EventsTopic string        `yaml:"events_topic"`
	TypingDelay time.Duration `yaml:"typing_delay"`
	Limit       int           `yaml:"limit"`
	LogLevel    string        `yaml:"log_level"`
}

func loadProfile(path string) (profile, error) {
	var p profile
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// apply copies profile values into opts for every setting whose flag was not
// given and whose environment variable is empty.
func (p profile) apply(opts *options, flags *pflag.FlagSet) {
	unset := func(flag, env string) bool {
		return !flags.Changed(flag) && os.Getenv(env) == ""
	}
	if p.API != "" && unset("api", "API_BASE_URL") {
		opts.apiURL = p.API
	}
	if p.Channel != "" && unset("channel", "CHANNEL_URL") {
		opts.channelURL = p.Channel
	}
	if p.Transport != "" && unset("transport", "CHANNEL_TRANSPORT") {
		opts.transport = p.Transport
	}
	if p.Token != "" && unset("token", "SESSION_TOKEN") {
		opts.token = p.Token
	}
	if p.JWTSecret != "" && unset("jwt-secret", "JWT_SECRET") {
		opts.jwtSecret = p.JWTSecret
	}
	if len(p.Redis) > 0 && unset("redis", "REDIS_ADDRS") {
		opts.redisAddrs = p.Redis
	}
	if len(p.Brokers) > 0 && unset("brokers", "KAFKA_BROKERS") {
		opts.brokers = p.Brokers
	}
	if p.EventsTopic != "" && unset("events-topic", "KAFKA_EVENTS_TOPIC") {
		opts.eventsTopic = p.EventsTopic
	}
	if p.TypingDelay > 0 && unset("typing-delay", "TYPING_DELAY") {
		opts.typingDelay = p.TypingDelay
	}
	if p.Limit > 0 && unset("limit", "PAGE_LIMIT") {
		opts.pageLimit = p.Limit
	}
	if p.LogLevel != "" && unset("log-level", "LOG_LEVEL") {
		opts.logLevel = p.LogLevel
	}
}
