package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/villageois/garou/internal/models"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Game     GameConfig
}

type ServerConfig struct {
	Address     string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Enabled  bool
}

// GameConfig carries the engine tuning knobs plus default lobby rules for
// games created without explicit rules.
type GameConfig struct {
	DefaultRules models.Rules

	NightRoleTimeout    time.Duration
	DeliberationTimeout time.Duration
	VoteTimeout         time.Duration
	CaptainVoteTimeout  time.Duration

	DuplicateIntentWindow time.Duration
	MaxHistory            int

	SkipFakePhases   bool
	DisableVoiceMute bool // opaque flag surfaced to external voice adapters
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address:     getEnv("SERVER_ADDRESS", ":8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "garou"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Game: GameConfig{
			DefaultRules: models.Rules{
				MinPlayers:       getEnvAsInt("RULES_MIN_PLAYERS", 5),
				MaxPlayers:       getEnvAsInt("RULES_MAX_PLAYERS", 10),
				WolfWinCondition: models.WolfWinCondition(getEnv("RULES_WOLF_WIN_CONDITION", string(models.WolfWinMajority))),
			},
			NightRoleTimeout:      getEnvAsMillis("TIMEOUT_NIGHT_ROLE_MS", 90000),
			DeliberationTimeout:   getEnvAsMillis("TIMEOUT_DELIBERATION_MS", 180000),
			VoteTimeout:           getEnvAsMillis("TIMEOUT_VOTE_MS", 60000),
			CaptainVoteTimeout:    getEnvAsMillis("TIMEOUT_CAPTAIN_VOTE_MS", 60000),
			DuplicateIntentWindow: getEnvAsMillis("DUPLICATE_INTENT_WINDOW_MS", 5000),
			MaxHistory:            getEnvAsInt("MAX_HISTORY", 200),
			SkipFakePhases:        getEnvAsBool("SKIP_FAKE_PHASES", false),
			DisableVoiceMute:      getEnvAsBool("DISABLE_VOICE_MUTE", false),
		},
	}

	switch cfg.Game.DefaultRules.WolfWinCondition {
	case models.WolfWinMajority, models.WolfWinElimination:
	default:
		return nil, fmt.Errorf("invalid RULES_WOLF_WIN_CONDITION %q", cfg.Game.DefaultRules.WolfWinCondition)
	}
	if cfg.Game.DefaultRules.MinPlayers < 2 || cfg.Game.DefaultRules.MaxPlayers < cfg.Game.DefaultRules.MinPlayers {
		return nil, fmt.Errorf("invalid lobby bounds %d..%d",
			cfg.Game.DefaultRules.MinPlayers, cfg.Game.DefaultRules.MaxPlayers)
	}

	return cfg, nil
}

// SubPhaseTimeout returns the deterministic AFK timeout for a sub-phase kind.
func (g GameConfig) SubPhaseTimeout(sub models.SubPhase) time.Duration {
	switch sub {
	case models.SubPhaseDeliberation:
		return g.DeliberationTimeout
	case models.SubPhaseVote:
		return g.VoteTimeout
	case models.SubPhaseVoteCapitaine:
		return g.CaptainVoteTimeout
	default:
		return g.NightRoleTimeout
	}
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}
