package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/metrics"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/session"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/subscription"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/monitoring"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/server"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/version"
)

func newServeCmd(opts *options, logger logging.Logger) *cobra.Command {
	var notifications string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep a session live and expose health, metrics and debug state over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			healthChecker := monitoring.NewHealthChecker("listsync", version.Version)
			metricsCollector := monitoring.NewMetricsCollector("listsync", version.Version, version.GitCommit)
			serviceMetrics := metrics.New(metricsCollector)

			rt, err := buildRuntime(ctx, opts, logger, serviceMetrics)
			if err != nil {
				return err
			}
			defer rt.Close()
			s := rt.session

			for name, check := range rt.checks {
				healthChecker.AddCheck(name, check)
			}
			healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
				"API_BASE_URL":      opts.apiURL,
				"CHANNEL_TRANSPORT": opts.transport,
			}))

			if err := s.Start(ctx); err != nil {
				return err
			}
			if notifications != "" {
				list, err := s.OpenList(ctx, session.ListOptions{
					Query: pagecache.Query{
						Kind:     model.KindNotification,
						Endpoint: notifications,
						Limit:    opts.pageLimit,
					},
					Topics: []string{subscription.NotificationTopic(s.UserID())},
				})
				if err != nil {
					return err
				}
				defer list.Close()
				if _, err := list.LoadMore(ctx); err != nil {
					logger.WithError(err).Warn("Initial notification page failed")
				}
			}

			router := server.SetupServiceRouter(logger, "listsync", healthChecker, metricsCollector)
			registerDebugRoutes(router.Group("/debug"), s)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx, server.DefaultConfig("listsync", "18090"), router, logger)
			})
			g.Go(func() error {
				<-gctx.Done()
				return s.Close()
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&notifications, "notifications", "/notifications", "API path of the notification list kept live (empty disables)")
	return cmd
}

func registerDebugRoutes(r gin.IRouter, s *session.Session) {
	r.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.State())
	})
	r.GET("/unread", func(c *gin.Context) {
		counts := s.Unread.Snapshot()
		if category := c.Query("category"); category != "" {
			counts = map[string]int{category: s.Unread.Count(category)}
		}
		c.JSON(http.StatusOK, gin.H{"unread": counts})
	})
	r.POST("/unread/:category/read", func(c *gin.Context) {
		category := c.Param("category")
		if err := s.Unread.MarkRead(c.Request.Context(), category, nil); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": category, "count": s.Unread.Count(category)})
	})
	r.GET("/presence", func(c *gin.Context) {
		if ids := c.QueryArray("user"); len(ids) > 0 {
			c.JSON(http.StatusOK, gin.H{"any_online": s.Presence.IsAnyOnline(ids...)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"online": s.Presence.Online()})
	})
	r.GET("/subscriptions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"topics": s.Subscriptions.Counts()})
	})
	r.GET("/pending", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pending": s.Mutator.Pending()})
	})
}
