package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxmesh/internal/vec"
)

// Config корневая структура конфигурации voxmesh.
// Нулевые значения полей заменяются значениями из окружения или дефолтами в геттерах.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Materials MaterialsConfig `yaml:"materials"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
}

type WorldConfig struct {
	SizeX     int   `yaml:"size_x"`
	SizeY     int   `yaml:"size_y"`
	SizeZ     int   `yaml:"size_z"`
	ChunkSize int   `yaml:"chunk_size"`
	Seed      int64 `yaml:"seed"`
}

type MaterialsConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	DataPath string `yaml:"data_path"`
	Compress *bool  `yaml:"compress"`
}

type ServerConfig struct {
	Enabled     bool            `yaml:"enabled"`
	APIPort     int             `yaml:"api_port"`
	AdminSecret string          `yaml:"admin_secret"` // base64, не короче 32 байт; пусто = без /api/admin
	Webhooks    []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig исходящий webhook, регистрируемый при старте
type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// CacheConfig горячий кеш геометрии перед хранилищем
type CacheConfig struct {
	RedisURL   string `yaml:"redis_url"` // пусто = кеш в памяти процесса
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// EventBusConfig шина событий сборки
type EventBusConfig struct {
	NATSURL        string `yaml:"nats_url"` // пусто = шина в памяти процесса
	Stream         string `yaml:"stream"`
	RetentionHours int    `yaml:"retention_hours"`
	Buffer         int    `yaml:"buffer"`
}

// TelemetryConfig экспорт трассировки OpenTelemetry
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"` // host:port OTLP HTTP; пусто = выключено
	Service  string `yaml:"service"`
}

// HistoryConfig где хранить историю сборок. MariaDB приоритетнее MongoDB.
type HistoryConfig struct {
	MySQLDSN      string `yaml:"mysql_dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// Dims размеры мира с поддержкой fallback значений
func (w *WorldConfig) Dims() vec.Vec3 {
	return vec.New(
		getIntWithEnvFallback(w.SizeX, "VOXMESH_SIZE_X", 64),
		getIntWithEnvFallback(w.SizeY, "VOXMESH_SIZE_Y", 32),
		getIntWithEnvFallback(w.SizeZ, "VOXMESH_SIZE_Z", 64),
	)
}

// ChunkDims размер чанка (куб)
func (w *WorldConfig) ChunkDims() vec.Vec3 {
	n := getIntWithEnvFallback(w.ChunkSize, "VOXMESH_CHUNK_SIZE", 16)
	return vec.New(n, n, n)
}

// GetSeed сид генератора ландшафта; 0 в конфиге означает "взять из окружения"
func (w *WorldConfig) GetSeed() int64 {
	if w.Seed != 0 {
		return w.Seed
	}
	if envVal := os.Getenv("VOXMESH_SEED"); envVal != "" {
		if seed, err := strconv.ParseInt(envVal, 10, 64); err == nil {
			return seed
		}
	}
	return 1
}

// GetPath путь к файлу материалов
func (m *MaterialsConfig) GetPath() string {
	return getStringWithEnvFallback(m.Path, "VOXMESH_MATERIALS", "configs/materials.yaml")
}

// GetDataPath каталог BadgerDB
func (s *StorageConfig) GetDataPath() string {
	return getStringWithEnvFallback(s.DataPath, "VOXMESH_DATA", "data")
}

// CompressEnabled сжимать ли геометрию (по умолчанию да)
func (s *StorageConfig) CompressEnabled() bool {
	if s.Compress == nil {
		return true
	}
	return *s.Compress
}

// GetAPIPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetAPIPort() int {
	return getIntWithEnvFallback(s.APIPort, "VOXMESH_API_PORT", 8088)
}

// GetAdminSecret ключ подписи административных токенов
func (s *ServerConfig) GetAdminSecret() string {
	return getStringWithEnvFallback(s.AdminSecret, "VOXMESH_ADMIN_SECRET", "")
}

// GetLevel уровень логирования
func (l *LoggingConfig) GetLevel() string {
	return getStringWithEnvFallback(l.Level, "VOXMESH_LOG_LEVEL", "info")
}

// GetRedisURL адрес Redis
func (c *CacheConfig) GetRedisURL() string {
	return getStringWithEnvFallback(c.RedisURL, "VOXMESH_REDIS_URL", "")
}

// GetTTL время жизни записи кеша
func (c *CacheConfig) GetTTL() time.Duration {
	return time.Duration(getIntWithEnvFallback(c.TTLSeconds, "VOXMESH_CACHE_TTL", 300)) * time.Second
}

// GetNATSURL адрес NATS
func (e *EventBusConfig) GetNATSURL() string {
	return getStringWithEnvFallback(e.NATSURL, "VOXMESH_NATS_URL", "")
}

// GetStream имя JetStream потока
func (e *EventBusConfig) GetStream() string {
	return getStringWithEnvFallback(e.Stream, "VOXMESH_NATS_STREAM", "VOXMESH")
}

// GetRetention сколько хранить события в потоке
func (e *EventBusConfig) GetRetention() time.Duration {
	return time.Duration(getIntWithEnvFallback(e.RetentionHours, "VOXMESH_NATS_RETENTION_HOURS", 24)) * time.Hour
}

// GetBuffer размер буфера шины в памяти
func (e *EventBusConfig) GetBuffer() int {
	return getIntWithEnvFallback(e.Buffer, "VOXMESH_BUS_BUFFER", 64)
}

// GetEndpoint адрес OTLP коллектора
func (t *TelemetryConfig) GetEndpoint() string {
	return getStringWithEnvFallback(t.Endpoint, "VOXMESH_OTLP_ENDPOINT", "")
}

// GetService имя сервиса в спанах
func (t *TelemetryConfig) GetService() string {
	return getStringWithEnvFallback(t.Service, "VOXMESH_SERVICE_NAME", "voxmesh")
}

// GetMySQLDSN строка подключения MariaDB/MySQL
func (h *HistoryConfig) GetMySQLDSN() string {
	return getStringWithEnvFallback(h.MySQLDSN, "VOXMESH_MYSQL_DSN", "")
}

// GetMongoURI адрес MongoDB
func (h *HistoryConfig) GetMongoURI() string {
	return getStringWithEnvFallback(h.MongoURI, "VOXMESH_MONGO_URI", "")
}

// GetMongoDatabase база MongoDB
func (h *HistoryConfig) GetMongoDatabase() string {
	return getStringWithEnvFallback(h.MongoDatabase, "VOXMESH_MONGO_DB", "voxmesh")
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultVal
}

func getStringWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	dims := c.World.Dims()
	chunk := c.World.ChunkDims()
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return fmt.Errorf("некорректный размер мира %s", dims)
	}
	if chunk.X <= 0 {
		return fmt.Errorf("некорректный размер чанка %s", chunk)
	}
	if port := c.Server.GetAPIPort(); port > 65535 {
		return fmt.Errorf("некорректный порт API %d", port)
	}
	for i, hook := range c.Server.Webhooks {
		if hook.URL == "" || len(hook.Events) == 0 {
			return fmt.Errorf("webhook #%d (%s): нужны url и events", i, hook.Name)
		}
	}
	return nil
}

// Default конфигурация без файла: все значения берутся из окружения или дефолтов
func Default() *Config {
	return &Config{}
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV VOXMESH_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VOXMESH_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
