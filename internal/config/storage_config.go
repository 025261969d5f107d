package config

const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"

	StateStoreSQL   = "sql"
	StateStoreRedis = "redis"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetDatabaseURL() string
	GetSQLitePath() string
	GetStateStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct {
	Driver        string `env:"STORAGE_DRIVER" envDefault:"memory"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"./data/azure-oauth2.db"`
	StateStore    string `env:"STATE_STORE" envDefault:"sql"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageDriver() string {
	return s.Driver
}

func (s Storage) GetDatabaseURL() string {
	return s.DatabaseURL
}

func (s Storage) GetSQLitePath() string {
	return s.SQLitePath
}

// GetStateStore selects where authorization states live: alongside the other tables, or in Redis.
func (s Storage) GetStateStore() string {
	return s.StateStore
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Storage) GetRedisDB() int {
	return s.RedisDB
}
