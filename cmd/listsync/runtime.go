package main

import (
	"context"
	"fmt"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/channel"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/fetch"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/session"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/auth"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/monitoring"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/redis"
)

// runtime is everything a command needs to talk to the API and the channel
type runtime struct {
	identity *auth.Session
	api      *fetch.Client
	session  *session.Session
	checks   map[string]monitoring.HealthCheck
	cleanup  []func()
}

func (rt *runtime) Close() {
	if rt.session != nil {
		_ = rt.session.Close()
	}
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		rt.cleanup[i]()
	}
}

func buildRuntime(ctx context.Context, opts *options, logger logging.Logger, m *metrics.Metrics) (*runtime, error) {
	identity, err := auth.NewSession(opts.token, []byte(opts.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}

	rt := &runtime{
		identity: identity,
		checks:   make(map[string]monitoring.HealthCheck),
		api: fetch.NewClient(fetch.Config{
			BaseURL: opts.apiURL,
			Token:   identity.Token,
			Logger:  logger,
		}),
	}

	transport, err := rt.buildTransport(ctx, opts, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.session, err = session.New(session.Config{
		Identity:    identity,
		TypingDelay: opts.typingDelay,
	}, session.Deps{
		Transport: transport,
		Fetcher:   rt.api,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		_ = transport.Close()
		rt.Close()
		return nil, err
	}
	rt.checks["channel"] = monitoring.ConnectionHealthCheck(opts.transport, rt.session.Connected)
	return rt, nil
}

func (rt *runtime) buildTransport(ctx context.Context, opts *options, logger logging.Logger) (channel.Transport, error) {
	switch channel.Kind(opts.transport) {
	case channel.KindWebSocket:
		return channel.NewWebSocket(channel.WebSocketConfig{
			URL:    opts.channelURL,
			Token:  rt.identity.Token,
			Logger: logger,
		}), nil

	case channel.KindRedis:
		cfg := redis.ConfigFromEnv()
		cfg.Addrs = opts.redisAddrs
		client, err := redis.NewUniversalClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.cleanup = append(rt.cleanup, func() { _ = client.Close() })
		rt.checks["redis"] = monitoring.PingHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return channel.NewRedis(client, logger), nil

	case channel.KindKafka:
		k, err := channel.NewKafka(channel.KafkaConfig{
			Brokers:  opts.brokers,
			Topic:    opts.eventsTopic,
			ClientID: "listsync",
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka transport: %w", err)
		}
		return k, nil
	}
	return nil, fmt.Errorf("unknown transport %q (want websocket, redis or kafka)", opts.transport)
}
