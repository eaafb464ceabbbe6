package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Run       RunConfig       `mapstructure:"run"`
	Explorers ExplorersConfig `mapstructure:"explorers"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	FileDir string `mapstructure:"file_dir"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// GeneralAssistantID is the process-wide fallback assistant used
	// when a user has no registered personas.
	GeneralAssistantID string `mapstructure:"general_assistant_id"`
}

type RunConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	CancelPollInterval time.Duration `mapstructure:"cancel_poll_interval"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type ExplorersConfig struct {
	EtherscanKey   string `mapstructure:"etherscan_key"`
	BscscanKey     string `mapstructure:"bscscan_key"`
	PolygonscanKey string `mapstructure:"polygonscan_key"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.file_dir", "files")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("run.poll_interval", time.Second)
	v.SetDefault("run.cancel_poll_interval", 500*time.Millisecond)
	v.SetDefault("run.timeout", 2*time.Minute)
	v.SetDefault("telegram.enabled", false)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if assistantID := v.GetString("GENERAL_PURPOSE_ASSISTANT_ID"); assistantID != "" {
		config.OpenAI.GeneralAssistantID = assistantID
	}

	if key := v.GetString("ETHERSCAN_API_KEY"); key != "" {
		config.Explorers.EtherscanKey = key
	}
	if key := v.GetString("BSCSCAN_API_KEY"); key != "" {
		config.Explorers.BscscanKey = key
	}
	if key := v.GetString("POLYGONSCAN_API_KEY"); key != "" {
		config.Explorers.PolygonscanKey = key
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
		config.Telegram.Enabled = true
	}

	return &config, nil
}
