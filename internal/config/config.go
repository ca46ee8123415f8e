package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string           `yaml:"discord_token" env:"DISCORD_TOKEN"`
	GuildID       string           `yaml:"guild_id" env:"GUILD_ID"`
	LogLevel      string           `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile       LogFileConfig    `yaml:"log_file" envPrefix:"LOG_FILE_"`
	RetentionDays int              `yaml:"retention_days" env:"RETENTION_DAYS"`
	Database      DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Health        HealthConfig     `yaml:"health" envPrefix:"HEALTH_"`
	Moderation    ModerationConfig `yaml:"moderation" envPrefix:"MODERATION_"`
	Expiry        ExpiryConfig     `yaml:"expiry" envPrefix:"EXPIRY_"`
	Gateway       GatewayConfig    `yaml:"gateway" envPrefix:"GATEWAY_"`
	EmbedColors   EmbedColors      `yaml:"embed_colors" envPrefix:"EMBED_COLOR_"`
}

type LogFileConfig struct {
	Path       string `yaml:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

type ModerationConfig struct {
	BannedRoleID        string        `yaml:"banned_role_id" env:"BANNED_ROLE_ID"`
	FrozenRoleID        string        `yaml:"frozen_role_id" env:"FROZEN_ROLE_ID"`
	MemberRoleID        string        `yaml:"member_role_id" env:"MEMBER_ROLE_ID"`
	StaffRoleIDs        []string      `yaml:"staff_role_ids" env:"STAFF_ROLE_IDS" envSeparator:","`
	ScreensharerRoleIDs []string      `yaml:"screensharer_role_ids" env:"SCREENSHARER_ROLE_IDS" envSeparator:","`
	LogChannelID        string        `yaml:"log_channel_id" env:"LOG_CHANNEL_ID"`
	ScrimLogChannelID   string        `yaml:"scrim_log_channel_id" env:"SCRIM_LOG_CHANNEL_ID"`
	FrozenChannelID     string        `yaml:"frozen_channel_id" env:"FROZEN_CHANNEL_ID"`
	DefaultScrimBan     time.Duration `yaml:"default_scrim_ban" env:"DEFAULT_SCRIM_BAN"`
	ServerAppeal        string        `yaml:"server_appeal" env:"SERVER_APPEAL"`
	ScrimAppeal         string        `yaml:"scrim_appeal" env:"SCRIM_APPEAL"`
	FrozenInstructions  string        `yaml:"frozen_instructions" env:"FROZEN_INSTRUCTIONS"`
}

type ExpiryConfig struct {
	ServerInterval time.Duration `yaml:"server_interval" env:"SERVER_INTERVAL"`
	ScrimInterval  time.Duration `yaml:"scrim_interval" env:"SCRIM_INTERVAL"`
}

type GatewayConfig struct {
	// RequestsPerSecond paces REST calls made on behalf of the moderation engines.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

type EmbedColors struct {
	Action  int `yaml:"action" env:"ACTION"`
	Warning int `yaml:"warning" env:"WARNING"`
	Error   int `yaml:"error" env:"ERROR"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		RetentionDays: 90,
		LogFile: LogFileConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "/data/warden.db"},
		Health:   HealthConfig{Enabled: false, Addr: ":8080"},
		Moderation: ModerationConfig{
			DefaultScrimBan:    30 * 24 * time.Hour,
			ServerAppeal:       "If you believe this ban was a mistake you may appeal by contacting the staff team.",
			ScrimAppeal:        "You may appeal this scrim ban by opening a ticket in the server.",
			FrozenInstructions: "You have been frozen for an anti-cheat screenshare. Do not leave the server, log out, or modify any files. Join the screenshare voice channel and wait for a screensharer.",
		},
		Expiry: ExpiryConfig{
			ServerInterval: 5 * time.Minute,
			ScrimInterval:  time.Minute,
		},
		Gateway: GatewayConfig{RequestsPerSecond: 5, Burst: 5},
		EmbedColors: EmbedColors{
			Action:  0x22C55E,
			Warning: 0xF59E0B,
			Error:   0xEF4444,
		},
	}
}

// Load resolves configuration from defaults, the yaml file at CONFIG_PATH, a
// local .env file and finally the process environment.
func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	if c.GuildID == "" {
		errs = append(errs, errors.New("GUILD_ID is required"))
	}
	if c.Moderation.BannedRoleID == "" {
		errs = append(errs, errors.New("MODERATION_BANNED_ROLE_ID is required"))
	}
	if c.Moderation.FrozenRoleID == "" {
		errs = append(errs, errors.New("MODERATION_FROZEN_ROLE_ID is required"))
	}
	if c.Moderation.MemberRoleID == "" {
		errs = append(errs, errors.New("MODERATION_MEMBER_ROLE_ID is required"))
	}
	if c.Expiry.ServerInterval <= 0 || c.Expiry.ScrimInterval <= 0 {
		errs = append(errs, errors.New("expiry intervals must be positive"))
	}
	return errors.Join(errs...)
}

func BuildLogger(level string, file LogFileConfig) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if file.Path == "" {
		return logger, nil
	}

	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotating, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return "sqlite"
	}
}
