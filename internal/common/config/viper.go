package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the struct that holds the configuration of the application
type Config struct {
	App      AppConfig      `json:"app"`
	RabbitMq RabbitMQConfig `json:"rabbitmq"`
	Browser  BrowserConfig  `json:"browser"`
	Capture  CaptureConfig  `json:"capture"`
	Batch    BatchConfig    `json:"batch"`
	Catalog  CatalogConfig  `json:"catalog"`
	Store    StoreConfig    `json:"store"`
	WebPanel WebPanelConfig `json:"webpanel"`
}

type AppConfig struct {
	Name     string `json:"name"`
	LogLevel int    `json:"logLevel"`
	Env      string `json:"env"`
}

type RabbitMQConfig struct {
	URL              string     `json:"url"`
	Exchange         string     `json:"exchange"`
	Queue            QueueNames `json:"queue"`
	ReconnectRetries int        `json:"reconnectRetries"`
	ReconnectTimeout int        `json:"reconnectTimeout"`
}

type QueueNames struct {
	CommandQueue string `json:"commandQueue"`
	SourceQueue  string `json:"sourceQueue"`
	LogQueue     string `json:"logQueue"`
}

// BrowserConfig tunes the browser-context pool. MaxContexts is the hard bound
// on simultaneously open contexts; each one costs an OS rendering process.
type BrowserConfig struct {
	Headless    bool   `json:"headless"`
	UserAgent   string `json:"userAgent"`
	MaxContexts int    `json:"maxContexts"`
}

// CaptureConfig carries the timing knobs. The click tiers and wait budgets
// are empirically tuned operational values, not a correctness contract.
type CaptureConfig struct {
	// ManifestWaitSec is the default per-job budget for a manifest to appear.
	ManifestWaitSec int `json:"manifestWaitSec"`
	// ProviderWaitSec overrides the budget for specific provider codes.
	ProviderWaitSec map[string]int `json:"providerWaitSec"`
	// CollectWindowMs is how long the job keeps listening after the first
	// manifest hit, so a master playlist can still displace a media one.
	CollectWindowMs int `json:"collectWindowMs"`
	// Click timeout tiers: the first interactive step gets the longest
	// budget, confirmatory steps progressively shorter ones.
	FirstClickSec int `json:"firstClickSec"`
	LongClickSec  int `json:"longClickSec"`
	ShortClickSec int `json:"shortClickSec"`
}

type BatchConfig struct {
	ChunkSize     int      `json:"chunkSize"`
	StaleAfterHrs int      `json:"staleAfterHrs"`
	PendingLimit  int      `json:"pendingLimit"`
	Providers     []string `json:"providers"`
	ItemPauseMs   int      `json:"itemPauseMs"`
}

type CatalogConfig struct {
	APIKey   string `json:"apiKey"`
	Language string `json:"language"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

type WebPanelConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Load config from config.json
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override from environment variables if present
	if envURL := os.Getenv("RABBITMQ_URL"); envURL != "" {
		config.RabbitMq.URL = envURL
	}
	if envKey := os.Getenv("CATALOG_API_KEY"); envKey != "" {
		config.Catalog.APIKey = envKey
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mediaharvest")
	v.SetDefault("app.logLevel", 4)
	v.SetDefault("rabbitmq.exchange", "mediaharvest")
	v.SetDefault("rabbitmq.queue.commandQueue", "harvest_commands")
	v.SetDefault("rabbitmq.queue.sourceQueue", "harvest_sources")
	v.SetDefault("rabbitmq.queue.logQueue", "harvest_log")
	v.SetDefault("rabbitmq.reconnectRetries", 5)
	v.SetDefault("rabbitmq.reconnectTimeout", 2000)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.userAgent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.maxContexts", 3)
	v.SetDefault("capture.manifestWaitSec", 30)
	v.SetDefault("capture.collectWindowMs", 2000)
	v.SetDefault("capture.firstClickSec", 12)
	v.SetDefault("capture.longClickSec", 8)
	v.SetDefault("capture.shortClickSec", 4)
	v.SetDefault("batch.chunkSize", 10)
	v.SetDefault("batch.staleAfterHrs", 24)
	v.SetDefault("batch.pendingLimit", 100)
	v.SetDefault("batch.itemPauseMs", 500)
	v.SetDefault("catalog.language", "en-US")
	v.SetDefault("store.path", "mediaharvest.db")
	v.SetDefault("webpanel.host", "0.0.0.0")
	v.SetDefault("webpanel.port", 8080)
}

// ManifestWait returns the capture budget for a provider, falling back to the
// global default when no per-provider override exists.
func (c *CaptureConfig) ManifestWait(provider string) time.Duration {
	if sec, ok := c.ProviderWaitSec[provider]; ok && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return time.Duration(c.ManifestWaitSec) * time.Second
}

// CollectWindow is the grace period after the first manifest hit.
func (c *CaptureConfig) CollectWindow() time.Duration {
	return time.Duration(c.CollectWindowMs) * time.Millisecond
}

func (c *CaptureConfig) FirstClick() time.Duration {
	return time.Duration(c.FirstClickSec) * time.Second
}

func (c *CaptureConfig) LongClick() time.Duration {
	return time.Duration(c.LongClickSec) * time.Second
}

func (c *CaptureConfig) ShortClick() time.Duration {
	return time.Duration(c.ShortClickSec) * time.Second
}

// StaleAfter is how old a source may get before its target is re-discovered.
func (c *BatchConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterHrs) * time.Hour
}

func (c *BatchConfig) ItemPause() time.Duration {
	return time.Duration(c.ItemPauseMs) * time.Millisecond
}

// Get config for app
func (c *Config) GetAppConfig() *AppConfig {
	return &c.App
}

// Get config for the browser pool
func (c *Config) GetBrowserConfig() *BrowserConfig {
	return &c.Browser
}

// Get config for capture timing
func (c *Config) GetCaptureConfig() *CaptureConfig {
	return &c.Capture
}

// Get config for batch discovery
func (c *Config) GetBatchConfig() *BatchConfig {
	return &c.Batch
}

// Get config for the catalog client
func (c *Config) GetCatalogConfig() *CatalogConfig {
	return &c.Catalog
}

// Get config for the store
func (c *Config) GetStoreConfig() *StoreConfig {
	return &c.Store
}

// Get config for web panel
func (c *Config) GetWebPanelConfig() *WebPanelConfig {
	return &c.WebPanel
}

// Get config for RabbitMQ
func (c *Config) GetRabbitMQConfig() *RabbitMQConfig {
	return &c.RabbitMq
}
