package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Model    ModelConfig    `mapstructure:"model"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int        `mapstructure:"port"`
	BaseURL      string     `mapstructure:"base_url"`
	BodyLimit    int64      `mapstructure:"body_limit"`     // 请求体上限（字节）
	RunRateLimit int        `mapstructure:"run_rate_limit"` // 每用户每分钟最多触发运行次数
	CORS         CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）

	SlowThreshold time.Duration `mapstructure:"slow_threshold"` // 慢查询告警阈值
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置（令牌由外部身份服务或 tokengen 签发）
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// EngineConfig 分配引擎常量
type EngineConfig struct {
	Levels              []string      `mapstructure:"levels"` // 从低到高
	ExperienceNormYears float64       `mapstructure:"experience_norm_years"`
	DefaultDistanceKm   float64       `mapstructure:"default_distance_km"`
	PartnerDelta        float64       `mapstructure:"partner_delta"`
	RationaleThreshold  float64       `mapstructure:"rationale_threshold"`
	DefaultRefsNeeded   int           `mapstructure:"default_refs_needed"`
	DefaultGameLength   time.Duration `mapstructure:"default_game_length"`
	BackToBackGap       time.Duration `mapstructure:"back_to_back_gap"`
	RunLockTTL          time.Duration `mapstructure:"run_lock_ttl"`
	Timezone            string        `mapstructure:"timezone"` // 执行计划 anchor 所在时区
}

// Location 解析执行计划时区，空值视为 UTC
func (c *EngineConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ModelConfig 外部推荐服务配置
type ModelConfig struct {
	Endpoint    string        `mapstructure:"endpoint"` // 为空时禁用 external_model 策略
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TriggerConfig 定时触发配置
type TriggerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Spec       string        `mapstructure:"spec"` // robfig/cron 表达式
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("LEAGUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("server.run_rate_limit", 10)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "league")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟
	v.SetDefault("db.slow_threshold", "200ms")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 密钥不设默认值，但需注册键名才能被 AutomaticEnv 解析
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "league-admin")
	v.SetDefault("auth.access_token_ttl", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("engine.levels", []string{"Rookie", "Junior", "Senior"})
	v.SetDefault("engine.experience_norm_years", 10)
	v.SetDefault("engine.default_distance_km", 50)
	v.SetDefault("engine.partner_delta", 0.25)
	v.SetDefault("engine.rationale_threshold", 0.6)
	v.SetDefault("engine.default_refs_needed", 2)
	v.SetDefault("engine.default_game_length", "90m")
	v.SetDefault("engine.back_to_back_gap", "30m")
	v.SetDefault("engine.run_lock_ttl", "5m")
	v.SetDefault("engine.timezone", "UTC")

	v.SetDefault("model.endpoint", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.model", "referee-ranker")
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.timeout", "30s")

	v.SetDefault("trigger.enabled", true)
	v.SetDefault("trigger.spec", "@every 1m")
	v.SetDefault("trigger.run_timeout", "2m")
	v.SetDefault("trigger.batch_size", 20)
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if len(c.Engine.Levels) == 0 {
		return fmt.Errorf("配置校验失败: engine.levels 不能为空")
	}
	seen := make(map[string]bool, len(c.Engine.Levels))
	for _, l := range c.Engine.Levels {
		key := strings.ToLower(strings.TrimSpace(l))
		if key == "" || seen[key] {
			return fmt.Errorf("配置校验失败: engine.levels 存在空值或重复等级 %q", l)
		}
		seen[key] = true
	}
	if c.Engine.ExperienceNormYears <= 0 || c.Engine.DefaultDistanceKm <= 0 {
		return fmt.Errorf("配置校验失败: engine.experience_norm_years 与 engine.default_distance_km 必须为正数")
	}
	if c.Engine.PartnerDelta < 0 || c.Engine.PartnerDelta > 0.5 {
		return fmt.Errorf("配置校验失败: engine.partner_delta 必须在 0-0.5 之间")
	}
	if c.Engine.DefaultRefsNeeded <= 0 {
		return fmt.Errorf("配置校验失败: engine.default_refs_needed 必须为正数")
	}
	if _, err := c.Engine.Location(); err != nil {
		return fmt.Errorf("配置校验失败: engine.timezone 无效: %w", err)
	}
	if c.Model.Endpoint != "" && c.Model.Timeout <= 0 {
		return fmt.Errorf("配置校验失败: 启用外部模型时 model.timeout 必须为正数")
	}
	if c.Trigger.Enabled && c.Trigger.Spec == "" {
		return fmt.Errorf("配置校验失败: trigger.spec 不能为空")
	}
	return nil
}
