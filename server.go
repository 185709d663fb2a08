package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"joinmatch/api/handlers"
	"joinmatch/api/middleware"
	"joinmatch/api/routes"
	"joinmatch/config"
	"joinmatch/db"
	"joinmatch/logs"
	"joinmatch/services"
)

// pushChannel выбирает транспорт live-событий; closer закрывает соединения брокера
func pushChannel(ctx context.Context, conf *config.ConfigSchema, ws *services.WSConnManager) (services.PushChannel, func(), error) {
	switch conf.Push.Transport {
	case "redis":
		client, err := services.InitRedis(conf.Redis)
		if err != nil {
			return nil, nil, err
		}
		relay := services.NewRedisPushChannel(client, ws)
		if err := relay.Start(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return relay, func() { _ = client.Close() }, nil
	case "rabbitmq":
		relay, err := services.NewRabbitPushChannel(conf.RabbitMQ.URL, conf.RabbitMQ.Exchange, ws)
		if err != nil {
			return nil, nil, err
		}
		if err := relay.Start(ctx); err != nil {
			_ = relay.Close()
			return nil, nil, err
		}
		return relay, func() { _ = relay.Close() }, nil
	default:
		return ws, func() {}, nil
	}
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "etc/app.yaml", "Path to the configuration file")
	flag.Parse()

	if err := config.LoadConfig(configPath); err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	conf := config.AppConfig
	logs.Setup(conf.Logs.Level, conf.Logs.Format)
	log := logs.For("server")

	if err := db.ConnectDB(); err != nil {
		log.WithError(err).Fatal("Failed to connect to the database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	workersCtx, cancelWorkers := context.WithCancel(context.Background())

	ws := services.NewWSConnManager(conf.Push.Timeout)
	channel, closeChannel, err := pushChannel(workersCtx, conf, ws)
	if err != nil {
		log.WithError(err).Fatalf("Failed to start %s push transport", conf.Push.Transport)
	}
	queue := services.NewPushQueue(channel, conf.Push.Workers, conf.Push.QueueSize, conf.Push.Timeout, conf.Push.Transport)
	queue.StartWorkers(workersCtx)

	h := handlers.New(db.ORM, queue, ws, conf.Messaging)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.PrometheusMiddleware("joinmatch"))

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	routes.PublicApi(router, h)
	routes.InternalApi(router, h)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.Backend.Host, conf.Backend.Port),
		Handler: router,
	}
	go func() {
		log.WithField("addr", server.Addr).Info("Starting server...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server shutdown error")
	}
	cancelWorkers()
	queue.Wait()
	closeChannel()
}
