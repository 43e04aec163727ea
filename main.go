package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"qosflow-go/internal/adapters"
	"qosflow-go/internal/database"
	"qosflow-go/internal/handlers"
	"qosflow-go/internal/services/orchestrator"
	"qosflow-go/internal/services/recognition"
	"qosflow-go/internal/services/sdn"
)

type Config struct {
	Server struct {
		Host  string `yaml:"host"`
		Port  int    `yaml:"port"`
		Debug bool   `yaml:"debug"`
	} `yaml:"server"`

	Database struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Name               string `yaml:"name"`
		User               string `yaml:"user"`
		Password           string `yaml:"password"`
		SSLMode            string `yaml:"sslmode"`
		MaxConnections     int    `yaml:"max_connections"`
		MaxIdleConnections int    `yaml:"max_idle_connections"`
	} `yaml:"database"`

	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	SSH adapters.SSHConfig `yaml:"ssh"`

	SDN sdn.Config `yaml:"sdn"`

	Recognition recognition.Config `yaml:"recognition"`

	Orchestrator orchestrator.Config `yaml:"orchestrator"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

func main() {
	// Load configuration
	cfg, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	setupLogging(cfg.Logging)

	logrus.Info("Starting QoSFlow Traffic Control System")

	zapLogger, err := newZapLogger(cfg.Server.Debug)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize database
	db, err := database.NewPostgreSQL(database.Config(cfg.Database))
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.Warnf("Redis unavailable, running without cache mirror: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	recognitionService, err := recognition.New(redisClient, zapLogger, cfg.Recognition)
	if err != nil {
		logrus.Fatalf("Failed to create recognition service: %v", err)
	}

	executor := adapters.NewSSHExecutor(zapLogger, cfg.SSH)
	orchestratorService := orchestrator.New(db, db, db, executor, zapLogger, cfg.Orchestrator)

	controller := sdn.NewRESTController(cfg.SDN.Controller)
	sdnService := sdn.New(controller, redisClient, zapLogger, cfg.SDN)

	// Setup HTTP router
	router := setupRouter(cfg)
	handlers.NewPolicyHandler(db, orchestratorService, zapLogger).RegisterRoutes(router)
	handlers.NewRecognitionHandler(recognitionService, zapLogger).RegisterRoutes(router)
	handlers.NewSDNHandler(sdnService, db, zapLogger).RegisterRoutes(router)

	// Start flow table maintenance
	recognitionService.Start()
	defer recognitionService.Stop()

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logrus.Infof("Starting HTTP server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down gracefully...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server stopped")
}

func loadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	err = decoder.Decode(&cfg)
	return &cfg, err
}

func setupLogging(cfg struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logrus.SetOutput(file)
		} else {
			logrus.Warnf("Failed to open log file %s: %v", cfg.File, err)
		}
	}
}

func newZapLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func setupRouter(cfg *Config) *gin.Engine {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "qosflow",
			"timestamp": time.Now().Unix(),
		})
	})

	return router
}
