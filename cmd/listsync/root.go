package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/merger"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/config"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// options holds the settings shared by every command. Defaults come from the
// environment; flags override them.
type options struct {
	apiURL      string
	channelURL  string
	transport   string
	token       string
	jwtSecret   string
	redisAddrs  []string
	brokers     []string
	eventsTopic string
	typingDelay time.Duration
	pageLimit   int
	logLevel    string
	profile     string
}

func newRootCmd() *cobra.Command {
	logger := logging.NewLoggerWithService("listsync")
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "listsync",
		Short:         "Real-time list sync client for the social API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile(opts.profile)
			if err != nil {
				return err
			}
			p.apply(opts, cmd.Flags())
			if opts.logLevel != "" {
				level, err := logrus.ParseLevel(opts.logLevel)
				if err != nil {
					return err
				}
				logger.SetLevel(level)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", config.GetEnv("API_BASE_URL", "http://localhost:9000/api"), "social API base URL")
	flags.StringVar(&opts.channelURL, "channel", config.GetEnv("CHANNEL_URL", "ws://localhost:9000/ws"), "push channel websocket URL")
	flags.StringVar(&opts.transport, "transport", config.GetEnv("CHANNEL_TRANSPORT", "websocket"), "push transport: websocket|redis|kafka")
	flags.StringVar(&opts.token, "token", config.GetEnv("SESSION_TOKEN", ""), "session bearer token")
	flags.StringVar(&opts.jwtSecret, "jwt-secret", config.GetEnv("JWT_SECRET", ""), "verify the session token with this secret")
	flags.StringSliceVar(&opts.redisAddrs, "redis", config.GetEnvList("REDIS_ADDRS", []string{"localhost:6379"}), "redis addresses for the redis transport")
	flags.StringSliceVar(&opts.brokers, "brokers", config.GetEnvList("KAFKA_BROKERS", nil), "kafka brokers for the kafka transport")
	flags.StringVar(&opts.eventsTopic, "events-topic", config.GetEnv("KAFKA_EVENTS_TOPIC", "social_events"), "kafka topic carrying room events")
	flags.DurationVar(&opts.typingDelay, "typing-delay", config.GetEnvDuration("TYPING_DELAY", merger.DefaultTypingDelay), "typing indicator delay")
	flags.IntVar(&opts.pageLimit, "limit", config.GetEnvInt("PAGE_LIMIT", pagecache.DefaultLimit), "page size")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (default from LOG_LEVEL)")
	flags.StringVar(&opts.profile, "profile", config.GetEnv("LISTSYNC_PROFILE", "listsync.yaml"), "YAML settings file, used for values not set by flags or env")

	rootCmd.AddCommand(newTailCmd(opts, logger))
	rootCmd.AddCommand(newServeCmd(opts, logger))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
