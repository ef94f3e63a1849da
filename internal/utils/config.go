package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// MaxWorkers caps the dispatcher pool to stay within remote-site tolerance.
const MaxWorkers = 16

type Config struct {
	Tickers   TickersConfig   `yaml:"tickers"`
	Blacklist BlacklistConfig `yaml:"blacklist"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Output    OutputConfig    `yaml:"output"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// TickersConfig points at the ticker universe. Database wins over File when set.
type TickersConfig struct {
	File         string `yaml:"file"`
	Database     string `yaml:"database"`
	Table        string `yaml:"table"`
	SymbolColumn string `yaml:"symbolColumn"`
	NameColumn   string `yaml:"nameColumn"`
}

type BlacklistConfig struct {
	File      string `yaml:"file"`
	RedisAddr string `yaml:"redisAddr"`
	RedisKey  string `yaml:"redisKey"`
}

type ScraperConfig struct {
	Source        string        `yaml:"source"`
	Workers       int           `yaml:"workers"`
	Timeout       int           `yaml:"timeout"`
	Settle        int           `yaml:"settle"`
	Retries       int           `yaml:"retries"`
	Delay         int           `yaml:"delay"`
	Deadline      int           `yaml:"deadline"`
	MinIntervalMs int           `yaml:"minIntervalMs"`
	URL           string        `yaml:"url"`
	Suffix        string        `yaml:"suffix"`
	WaitSelector  string        `yaml:"waitSelector"`
	UserAgent     string        `yaml:"userAgent"`
	Rule          RuleConfig    `yaml:"rule"`
	Browser       BrowserConfig `yaml:"browser"`
}

// RuleConfig selects how price and variation are located in a captured page.
type RuleConfig struct {
	Kind              string   `yaml:"kind"`
	PriceLine         int      `yaml:"priceLine"`
	VariationLine     int      `yaml:"variationLine"`
	VariationPctLine  int      `yaml:"variationPctLine"`
	Strip             []string `yaml:"strip"`
	PriceSelector     string   `yaml:"priceSelector"`
	VariationSelector string   `yaml:"variationSelector"`
	PctSelector       string   `yaml:"pctSelector"`
}

type BrowserConfig struct {
	Headless      bool   `yaml:"headless"`
	Debug         bool   `yaml:"debug"`
	DisableImages bool   `yaml:"disableImages"`
	ExecPath      string `yaml:"execPath"`
}

type OutputConfig struct {
	Dir             string `yaml:"dir"`
	Format          string `yaml:"format"`
	IncludeFailures bool   `yaml:"includeFailures"`
}

type NotifyConfig struct {
	SlackWebhook string `yaml:"slackWebhook"`
}

type LogConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

// Source names accepted in scraper.source.
const (
	SourceBrowser = "browser"
	SourceHTML    = "html"
	SourceChart   = "chart"
)

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides, fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	config := &Config{}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(file, config)
	if err != nil {
		return nil, err
	}

	// A missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()
	config.applyEnv()
	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Scraper.Source = EnvOrString("QUOTES_SOURCE", c.Scraper.Source)
	c.Blacklist.RedisAddr = EnvOrString("REDIS_ADDR", c.Blacklist.RedisAddr)
	c.Notify.SlackWebhook = EnvOrString("SLACK_WEBHOOK_URL", c.Notify.SlackWebhook)
	c.Output.Dir = EnvOrString("QUOTES_OUTPUT_DIR", c.Output.Dir)
	if v, ok := os.LookupEnv("QUOTES_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scraper.Workers = n
		}
	}
}

func (c *Config) setDefaults() {
	if c.Tickers.File == "" && c.Tickers.Database == "" {
		c.Tickers.File = "data/ativos.csv"
	}
	if c.Tickers.Table == "" {
		c.Tickers.Table = "ativos"
	}
	if c.Tickers.SymbolColumn == "" {
		c.Tickers.SymbolColumn = "ticker"
	}
	if c.Tickers.NameColumn == "" {
		c.Tickers.NameColumn = "nome"
	}
	if c.Blacklist.File == "" {
		c.Blacklist.File = "data/lista-negra.csv"
	}
	if c.Blacklist.RedisKey == "" {
		c.Blacklist.RedisKey = "quotes:blacklist"
	}

	s := &c.Scraper
	if s.Source == "" {
		s.Source = SourceBrowser
	}
	if s.Workers == 0 {
		s.Workers = 2
	}
	if s.Timeout == 0 {
		s.Timeout = 30
	}
	if s.Settle == 0 && s.Source == SourceBrowser {
		s.Settle = 4
	}
	if s.Delay == 0 {
		s.Delay = 2
	}
	if s.URL == "" {
		switch s.Source {
		case SourceChart:
			s.URL = "https://query1.finance.yahoo.com"
		default:
			s.URL = "https://www.google.com/finance/quote/{symbol}"
		}
	}
	if s.Suffix == "" {
		switch s.Source {
		case SourceChart:
			s.Suffix = ".SA"
		default:
			s.Suffix = ":BVMF"
		}
	}
	if s.WaitSelector == "" {
		s.WaitSelector = "body"
	}
	if s.UserAgent == "" {
		s.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	}
	if s.Rule.Kind == "" {
		s.Rule.Kind = "lines"
	}
	if s.Rule.Kind == "lines" && s.Rule.PriceLine == 0 && s.Rule.VariationLine == 0 && s.Rule.VariationPctLine == 0 {
		s.Rule.PriceLine, s.Rule.VariationLine, s.Rule.VariationPctLine = 34, 35, 36
	}
	if s.Rule.Strip == nil {
		s.Rule.Strip = []string{"Today", "Hoje"}
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.Output.Format == "" {
		c.Output.Format = "csv"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	s := c.Scraper
	switch s.Source {
	case SourceBrowser, SourceHTML, SourceChart:
	default:
		return fmt.Errorf("invalid scraper source %q", s.Source)
	}
	if s.Workers < 1 || s.Workers > MaxWorkers {
		return fmt.Errorf("invalid workers value %d (want 1-%d)", s.Workers, MaxWorkers)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("invalid timeout value")
	}
	if s.Settle < 0 || s.Settle >= s.Timeout {
		return fmt.Errorf("invalid settle value %d (must be below timeout %d)", s.Settle, s.Timeout)
	}
	if s.Retries < 0 || s.Delay < 0 || s.Deadline < 0 || s.MinIntervalMs < 0 {
		return fmt.Errorf("retries, delay, deadline and minIntervalMs must not be negative")
	}
	if s.Source != SourceChart {
		switch s.Rule.Kind {
		case "lines":
			if s.Rule.PriceLine < 0 || s.Rule.VariationLine < 0 || s.Rule.VariationPctLine < 0 {
				return fmt.Errorf("rule line offsets must not be negative")
			}
		case "selectors":
			if s.Rule.PriceSelector == "" || s.Rule.VariationSelector == "" || s.Rule.PctSelector == "" {
				return fmt.Errorf("selectors rule needs priceSelector, variationSelector and pctSelector")
			}
		default:
			return fmt.Errorf("invalid rule kind %q", s.Rule.Kind)
		}
	}
	switch c.Output.Format {
	case "csv", "json":
	default:
		return fmt.Errorf("invalid output format %q", c.Output.Format)
	}
	return nil
}

func (s ScraperConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

func (s ScraperConfig) SettleDuration() time.Duration {
	return time.Duration(s.Settle) * time.Second
}

func (s ScraperConfig) DelayDuration() time.Duration {
	return time.Duration(s.Delay) * time.Second
}

func (s ScraperConfig) DeadlineDuration() time.Duration {
	return time.Duration(s.Deadline) * time.Second
}

func (s ScraperConfig) MinInterval() time.Duration {
	return time.Duration(s.MinIntervalMs) * time.Millisecond
}
