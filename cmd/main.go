package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"salesforecast/db"
	"salesforecast/forecast"
	qhttp "salesforecast/http"
	"salesforecast/logging"
	"salesforecast/ml"
	"salesforecast/monitoring"
)

type Config struct {
	Http struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		StrictStatus   bool          `yaml:"strict_status"`
	} `yaml:"http"`
	ML struct {
		ModelType string `yaml:"model_type"`
		ModelPath string `yaml:"model_path"`
		Features  int    `yaml:"features"`
	} `yaml:"ml"`
	Log     logging.Config `yaml:"log"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
}

func defaultConfig() *Config {
	serverDefaults := qhttp.DefaultServerConfig()

	config := &Config{}
	config.Http.Host = serverDefaults.Host
	config.Http.Port = serverDefaults.Port
	config.Http.Timeout = serverDefaults.Timeout
	config.Http.MaxBodyBytes = serverDefaults.MaxBodyBytes
	config.Http.AllowedOrigins = serverDefaults.AllowedOrigins
	config.ML.ModelType = ml.ModelTypeLinearRegression
	config.ML.ModelPath = "linear_regression_model.json"
	config.ML.Features = forecast.DefaultFeatures
	config.Log.Level = "info"
	config.Log.Format = "json"
	return config
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load config
	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}
	defer logger.Sync()

	// 2. Load model, once, before serving
	model, err := ml.LoadModel(config.ML.ModelType, config.ML.ModelPath)
	if err != nil {
		logger.Fatal("model_load_failed", zap.String("path", config.ML.ModelPath), zap.Error(err))
	}
	logger.Info("model_loaded",
		zap.String("type", config.ML.ModelType),
		zap.String("path", config.ML.ModelPath),
		zap.Int("features", model.NumFeatures()),
	)

	// 3. Optional prediction journal
	var journal *db.Journal
	if config.Journal.Path != "" {
		journal, err = db.OpenJournal(config.Journal.Path)
		if err != nil {
			logger.Fatal("journal_open_failed", zap.String("path", config.Journal.Path), zap.Error(err))
		}
		defer journal.Close()
		logger.Info("journal_enabled", zap.String("path", config.Journal.Path))
	}

	serviceConfig := forecast.Config{Features: config.ML.Features, Logger: logger}
	handlersConfig := qhttp.HandlersConfig{
		ModelType:    config.ML.ModelType,
		StrictStatus: config.Http.StrictStatus,
		Metrics:      monitoring.NewCollector(),
		Logger:       logger,
	}
	if journal != nil {
		serviceConfig.Recorder = journal
		handlersConfig.Journal = journal
	}

	service, err := forecast.NewService(model, serviceConfig)
	if err != nil {
		logger.Fatal("service_init_failed", zap.Error(err))
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Host:           config.Http.Host,
		Port:           config.Http.Port,
		Timeout:        config.Http.Timeout,
		MaxBodyBytes:   config.Http.MaxBodyBytes,
		AllowedOrigins: config.Http.AllowedOrigins,
	}, qhttp.NewHandlers(service, handlersConfig), logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting_down")

	if err := server.Stop(); err != nil {
		logger.Error("server_forced_shutdown", zap.Error(err))
	}
}

// loadConfig reads path over the defaults. A missing file leaves the
// defaults in place; relative model and journal paths resolve against the
// config file's directory.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	dir := filepath.Dir(path)
	if config.ML.ModelPath != "" && !filepath.IsAbs(config.ML.ModelPath) {
		config.ML.ModelPath = filepath.Join(dir, config.ML.ModelPath)
	}
	if config.Journal.Path != "" && !filepath.IsAbs(config.Journal.Path) {
		config.Journal.Path = filepath.Join(dir, config.Journal.Path)
	}
	return config, nil
}
