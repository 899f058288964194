package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adminconsole/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// StubConfig — настройки встроенного стенда API (режим -dev и интеграционные тесты).
type StubConfig struct {
	Addr               string `yaml:"addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	RedisURL           string `yaml:"redis_url"`
	JWTSecret          string `yaml:"jwt_secret"`
	AccessTokenTTLSec  int    `yaml:"access_token_ttl_seconds"`
}

// Config содержит настройки клиента консоли и встроенного стенда.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Удалённый admin API
	APIBaseURL string `yaml:"api_base_url"`
	WSURL      string `yaml:"ws_url"`

	// Таймауты сетевых операций
	RequestTimeout time.Duration `yaml:"-"`
	RefreshTimeout time.Duration `yaml:"-"`

	// Синхронизация чата
	TypingExpiry  time.Duration `yaml:"-"`
	MessageWindow int           `yaml:"message_window"`
	NoticeTTL     time.Duration `yaml:"-"`

	// Логирование
	LogLevel string `yaml:"log_level"`

	// Встроенный стенд (-dev)
	Stub StubConfig `yaml:"stub"`
}

// yamlConfig — промежуточная структура для парсинга YAML (секунды вместо Duration).
type yamlConfig struct {
	APIBaseURL        string     `yaml:"api_base_url"`
	WSURL             string     `yaml:"ws_url"`
	RequestTimeoutSec int        `yaml:"request_timeout_seconds"`
	RefreshTimeoutSec int        `yaml:"refresh_timeout_seconds"`
	TypingExpirySec   int        `yaml:"typing_expiry_seconds"`
	MessageWindow     int        `yaml:"message_window"`
	NoticeTTLSec      int        `yaml:"notice_ttl_seconds"`
	LogLevel          string     `yaml:"log_level"`
	Stub              StubConfig `yaml:"stub"`
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	// Значения по умолчанию
	yc := yamlConfig{
		APIBaseURL:        "http://localhost:8090",
		WSURL:             "ws://localhost:8090/admin/chat/ws",
		RequestTimeoutSec: 15,
		RefreshTimeoutSec: 10,
		TypingExpirySec:   4,
		MessageWindow:     200,
		NoticeTTLSec:      6,
		LogLevel:          "info",
		Stub: StubConfig{
			Addr:               ":8090",
			CORSAllowedOrigins: "*",
			RedisURL:           "",
			JWTSecret:          "dev-console-secret",
			AccessTokenTTLSec:  900,
		},
	}

	// Загрузка YAML: CONFIG_PATH → config/console.yaml
	paths := []string{os.Getenv("CONFIG_PATH"), "config/console.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	cfg := &Config{
		APIBaseURL:     strings.TrimSuffix(envStr("API_BASE_URL", yc.APIBaseURL), "/"),
		WSURL:          envStr("WS_URL", yc.WSURL),
		RequestTimeout: time.Duration(envInt("REQUEST_TIMEOUT", yc.RequestTimeoutSec)) * time.Second,
		RefreshTimeout: time.Duration(envInt("REFRESH_TIMEOUT", yc.RefreshTimeoutSec)) * time.Second,
		TypingExpiry:   time.Duration(envInt("TYPING_EXPIRY_SECONDS", yc.TypingExpirySec)) * time.Second,
		MessageWindow:  envInt("MESSAGE_WINDOW", yc.MessageWindow),
		NoticeTTL:      time.Duration(envInt("NOTICE_TTL_SECONDS", yc.NoticeTTLSec)) * time.Second,
		LogLevel:       envStr("LOG_LEVEL", yc.LogLevel),
		Stub: StubConfig{
			Addr:               envStr("STUB_ADDR", yc.Stub.Addr),
			CORSAllowedOrigins: envStr("STUB_CORS_ALLOWED_ORIGINS", yc.Stub.CORSAllowedOrigins),
			RedisURL:           envStr("STUB_REDIS_URL", yc.Stub.RedisURL),
			JWTSecret:          envStr("STUB_JWT_SECRET", yc.Stub.JWTSecret),
			AccessTokenTTLSec:  envInt("STUB_ACCESS_TOKEN_TTL", yc.Stub.AccessTokenTTLSec),
		},
	}

	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = 200
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = 4 * time.Second
	}

	if os.Getenv("APP_ENV") == "production" && cfg.Stub.JWTSecret == "dev-console-secret" {
		// Стенд в production не поднимается, но секрет по умолчанию в env — признак ошибки деплоя.
		logger.Errorf("config: в production задайте STUB_JWT_SECRET или уберите его из окружения")
	}

	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
