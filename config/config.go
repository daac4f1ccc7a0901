// Package config loads the application configuration from file and
// environment and maps it onto the per-stage configs the pipeline
// components consume.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mohammad-safakhou/foresight/internal/ensemble"
	"github.com/mohammad-safakhou/foresight/internal/forecast"
	"github.com/mohammad-safakhou/foresight/internal/llm"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/mohammad-safakhou/foresight/internal/prompts"
	"github.com/mohammad-safakhou/foresight/internal/rank"
	"github.com/mohammad-safakhou/foresight/internal/retrieval"
	"github.com/mohammad-safakhou/foresight/internal/summarize"
)

// Config holds all configuration for the forecasting system
type Config struct {
	General       GeneralConfig       `mapstructure:"general"`
	Server        ServerConfig        `mapstructure:"server"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Ranking       RankingConfig       `mapstructure:"ranking"`
	Summarization SummarizationConfig `mapstructure:"summarization"`
	Ensemble      EnsembleConfig      `mapstructure:"ensemble"`
	Storage       StorageConfig       `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	ScheduleCron string `mapstructure:"schedule_cron"`
}

// ProvidersConfig carries API credentials for LLM providers and news
// backends.
type ProvidersConfig struct {
	OpenAIKey      string        `mapstructure:"openai_key"`
	AnthropicKey   string        `mapstructure:"anthropic_key"`
	TogetherKey    string        `mapstructure:"together_key"`
	GoogleKey      string        `mapstructure:"google_key"`
	NewscatcherKey string        `mapstructure:"newscatcher_key"`
	GNewsKey       string        `mapstructure:"gnews_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
}

// RetrievalConfig drives query planning and article retrieval.
type RetrievalConfig struct {
	QueryModel          string  `mapstructure:"query_model"`
	QueryTemperature    float64 `mapstructure:"query_temperature"`
	NumKeywords         int     `mapstructure:"num_keywords"`
	MaxWordsNewscatcher int     `mapstructure:"max_words_newscatcher"`
	MaxWordsGNews       int     `mapstructure:"max_words_gnews"`
	ArticlesPerQuery    int     `mapstructure:"articles_per_query"`
	MinBodyChars        int     `mapstructure:"min_body_chars"`
	MaxConcurrent       int     `mapstructure:"max_concurrent"`
}

// RankingConfig drives the embedding pre-filter and the relevance ranker.
type RankingConfig struct {
	Method          string  `mapstructure:"method"`
	Detail          string  `mapstructure:"detail"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	Threshold       float64 `mapstructure:"threshold"`
	SortBy          string  `mapstructure:"sort_by"`
	PreFilter       bool    `mapstructure:"pre_filter"`
	PreFilterCosine float64 `mapstructure:"pre_filter_cosine"`
}

// SummarizationConfig drives recursive summarization.
type SummarizationConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	Template    string  `mapstructure:"template"`
	MaxArticles int     `mapstructure:"max_articles"`
}

// EnsembleConfig drives elicitation and aggregation.
type EnsembleConfig struct {
	BaseModels           []string  `mapstructure:"base_models"`
	BaseTemplates        []string  `mapstructure:"base_templates"`
	BaseTemperature      float64   `mapstructure:"base_temperature"`
	AnswerType           string    `mapstructure:"answer_type"`
	Aggregation          string    `mapstructure:"aggregation"`
	Weights              []float64 `mapstructure:"weights"`
	MetaModel            string    `mapstructure:"meta_model"`
	MetaTemperature      float64   `mapstructure:"meta_temperature"`
	AlignmentModel       string    `mapstructure:"alignment_model"`
	AlignmentTemperature float64   `mapstructure:"alignment_temperature"`
	WithAlignment        bool      `mapstructure:"with_alignment"`
}

// StorageConfig contains Postgres, Redis and article index settings.
type StorageConfig struct {
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Redis     RedisConfig    `mapstructure:"redis"`
	IndexPath string         `mapstructure:"index_path"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the Postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// LoadConfig reads configuration from the given file, or searches the
// usual locations when path is empty. Environment variables prefixed
// FORESIGHT_ override file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("retrieval.query_model", "gpt-4-1106-preview")
	v.SetDefault("retrieval.query_temperature", 0.0)
	v.SetDefault("retrieval.num_keywords", 3)
	v.SetDefault("retrieval.max_words_newscatcher", 5)
	v.SetDefault("retrieval.max_words_gnews", 8)
	v.SetDefault("retrieval.articles_per_query", 5)
	v.SetDefault("retrieval.min_body_chars", 200)
	v.SetDefault("retrieval.max_concurrent", 8)

	v.SetDefault("ranking.method", string(rank.MethodLLM))
	v.SetDefault("ranking.detail", string(rank.DetailExcerpt))
	v.SetDefault("ranking.model", "gpt-3.5-turbo-1106")
	v.SetDefault("ranking.temperature", 0.0)
	v.SetDefault("ranking.threshold", 4.0)
	v.SetDefault("ranking.sort_by", "date")
	v.SetDefault("ranking.pre_filter", true)
	v.SetDefault("ranking.pre_filter_cosine", 0.32)

	v.SetDefault("summarization.model", "gpt-3.5-turbo-1106")
	v.SetDefault("summarization.temperature", 0.2)
	v.SetDefault("summarization.template", "summarization-0")
	v.SetDefault("summarization.max_articles", 20)

	v.SetDefault("ensemble.base_models", []string{"gpt-4-1106-preview"})
	v.SetDefault("ensemble.base_templates", []string{"scratchpad-0"})
	v.SetDefault("ensemble.base_temperature", 1.0)
	v.SetDefault("ensemble.answer_type", string(models.AnswerProbability))
	v.SetDefault("ensemble.aggregation", ensemble.AggregateMeta)
	v.SetDefault("ensemble.meta_model", "gpt-4")
	v.SetDefault("ensemble.meta_temperature", 0.2)
	v.SetDefault("ensemble.alignment_model", "gpt-3.5-turbo-1106")
	v.SetDefault("ensemble.alignment_temperature", 0.0)

	v.SetDefault("providers.timeout", 120*time.Second)
	v.SetDefault("providers.max_concurrent", 8)
	v.SetDefault("server.address", ":10001")
	v.SetDefault("storage.redis.ttl", time.Duration(0))

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("FORESIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Defaults plus environment are a complete configuration; a missing
		// file is not fatal.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LLMConfig maps provider credentials onto the router configuration.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		OpenAIKey:     c.Providers.OpenAIKey,
		AnthropicKey:  c.Providers.AnthropicKey,
		TogetherKey:   c.Providers.TogetherKey,
		GoogleKey:     c.Providers.GoogleKey,
		Timeout:       c.Providers.Timeout,
		MaxConcurrent: c.Providers.MaxConcurrent,
	}
}

// PlannerConfig builds the query planner configuration, resolving the
// search-query templates from the prompt catalog.
func (c *Config) PlannerConfig() (retrieval.PlannerConfig, error) {
	templates := []prompts.Template{prompts.SearchQuery0, prompts.SearchQuery1}
	return retrieval.PlannerConfig{
		Model:               c.Retrieval.QueryModel,
		Temperature:         c.Retrieval.QueryTemperature,
		Templates:           templates,
		NumKeywords:         c.Retrieval.NumKeywords,
		MaxWordsNewscatcher: c.Retrieval.MaxWordsNewscatcher,
		MaxWordsGNews:       c.Retrieval.MaxWordsGNews,
	}, nil
}

func (c *Config) RetrieverConfig() retrieval.RetrieverConfig {
	return retrieval.RetrieverConfig{
		ArticlesPerQuery: c.Retrieval.ArticlesPerQuery,
		MinBodyChars:     c.Retrieval.MinBodyChars,
		MaxConcurrent:    c.Retrieval.MaxConcurrent,
	}
}

func (c *Config) PreFilterConfig() rank.PreFilterConfig {
	cfg := rank.DefaultPreFilterConfig()
	cfg.Enabled = c.Ranking.PreFilter
	if c.Ranking.PreFilterCosine > 0 {
		cfg.Threshold = c.Ranking.PreFilterCosine
	}
	return cfg
}

func (c *Config) RankConfig() rank.Config {
	return rank.Config{
		Method:        rank.Method(c.Ranking.Method),
		Detail:        rank.Detail(c.Ranking.Detail),
		Model:         c.Ranking.Model,
		Temperature:   c.Ranking.Temperature,
		Threshold:     c.Ranking.Threshold,
		SortBy:        c.Ranking.SortBy,
		MaxConcurrent: c.Providers.MaxConcurrent,
	}
}

func (c *Config) SummarizeConfig() (summarize.Config, error) {
	tpl, err := prompts.Lookup(c.Summarization.Template)
	if err != nil {
		return summarize.Config{}, err
	}
	return summarize.Config{
		Model:         c.Summarization.Model,
		Temperature:   c.Summarization.Temperature,
		Template:      tpl,
		MaxArticles:   c.Summarization.MaxArticles,
		MaxConcurrent: c.Providers.MaxConcurrent,
	}, nil
}

// EnsembleConfig resolves template ids into the ensemble configuration.
// Every base model gets the same template list.
func (c *Config) EnsembleConfig() (ensemble.Config, error) {
	templates := make([]prompts.Template, 0, len(c.Ensemble.BaseTemplates))
	for _, id := range c.Ensemble.BaseTemplates {
		tpl, err := prompts.Lookup(id)
		if err != nil {
			return ensemble.Config{}, err
		}
		templates = append(templates, tpl)
	}
	perModel := make([][]prompts.Template, len(c.Ensemble.BaseModels))
	for i := range perModel {
		perModel[i] = templates
	}
	metaTpl, err := prompts.Lookup("ensemble-0")
	if err != nil {
		return ensemble.Config{}, err
	}
	return ensemble.Config{
		BaseModels:           c.Ensemble.BaseModels,
		BaseTemplates:        perModel,
		BaseTemperature:      c.Ensemble.BaseTemperature,
		AnswerType:           models.AnswerType(c.Ensemble.AnswerType),
		Aggregation:          c.Ensemble.Aggregation,
		Weights:              c.Ensemble.Weights,
		MetaModel:            c.Ensemble.MetaModel,
		MetaTemplate:         metaTpl,
		MetaTemperature:      c.Ensemble.MetaTemperature,
		AlignmentModel:       c.Ensemble.AlignmentModel,
		AlignmentTemperature: c.Ensemble.AlignmentTemperature,
	}, nil
}

// PipelineConfig assembles the full per-run configuration.
func (c *Config) PipelineConfig(retrievalIndex int) (forecast.Config, error) {
	planner, err := c.PlannerConfig()
	if err != nil {
		return forecast.Config{}, err
	}
	summarizeCfg, err := c.SummarizeConfig()
	if err != nil {
		return forecast.Config{}, err
	}
	ensembleCfg, err := c.EnsembleConfig()
	if err != nil {
		return forecast.Config{}, err
	}
	return forecast.Config{
		Planner:        planner,
		Retriever:      c.RetrieverConfig(),
		PreFilter:      c.PreFilterConfig(),
		Rank:           c.RankConfig(),
		Summarize:      summarizeCfg,
		Ensemble:       ensembleCfg,
		RetrievalIndex: retrievalIndex,
		WithAlignment:  c.Ensemble.WithAlignment,
	}, nil
}
