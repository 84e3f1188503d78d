package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/clog"
	"github.com/kazz187/taskcrew/pkg/storage"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"28"`
	LogCompress   bool   `envconfig:"LOG_COMPRESS" default:"false"`
}

// CapacityEnv holds the per-role default capacity. Because every field has
// an explicit name, envconfig also accepts the variables without the
// TASKCREW_ prefix.
type CapacityEnv struct {
	ManagerMaxCapacity  int `envconfig:"MANAGER_MAX_CAPACITY" default:"10"`
	EngineerMaxCapacity int `envconfig:"ENGINEER_MAX_CAPACITY" default:"5"`
	TesterMaxCapacity   int `envconfig:"TESTER_MAX_CAPACITY" default:"3"`
}

type CoordinatorEnv struct {
	RebalanceInterval time.Duration `envconfig:"REBALANCE_INTERVAL" default:"60s"`
	CrewFile          string        `envconfig:"CREW_FILE" default:".taskcrew/crew.yaml"`
	PreloadSamples    bool          `envconfig:"PRELOAD_SAMPLES" default:"false"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".taskcrew/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"taskcrew/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type SnapshotEnv struct {
	SnapshotEnabled  bool          `envconfig:"SNAPSHOT_ENABLED" default:"false"`
	SnapshotInterval time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"5m"`
	SnapshotRestore  bool          `envconfig:"SNAPSHOT_RESTORE" default:"false"`
}

type PushEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `envconfig:"VAPID_SUBSCRIBER" default:"mailto:taskcrew@localhost"`
}

type Env struct {
	BaseEnv
	CapacityEnv
	CoordinatorEnv
	StorageEnv
	SnapshotEnv
	PushEnv
}

const namespace = "TASKCREW"

// LoadEnv reads the given dotenv files (".env" when none are named), then
// the process environment. Variables already set in the environment win over
// dotenv values, and missing dotenv files are skipped.
func LoadEnv(dotenvFiles ...string) (*Env, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) validate() error {
	var errs []error
	for _, role := range worker.Roles {
		if c := e.Capacity(role); c <= 0 {
			errs = append(errs, fmt.Errorf("%s max capacity must be positive, got %d", role, c))
		}
	}
	if e.RebalanceInterval <= 0 {
		errs = append(errs, fmt.Errorf("rebalance interval must be positive, got %s", e.RebalanceInterval))
	}
	if e.SnapshotEnabled && e.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("snapshot interval must be positive, got %s", e.SnapshotInterval))
	}
	return errors.Join(errs...)
}

// Capacity is the default max capacity for workers of role.
func (e *CapacityEnv) Capacity(role worker.Role) int {
	switch role {
	case worker.RoleManager:
		return e.ManagerMaxCapacity
	case worker.RoleEngineer:
		return e.EngineerMaxCapacity
	case worker.RoleTester:
		return e.TesterMaxCapacity
	default:
		return 0
	}
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (e *BaseEnv) LogFileConfig() clog.FileConfig {
	return clog.FileConfig{
		Path:       e.LogFile,
		MaxSizeMB:  e.LogMaxSizeMB,
		MaxBackups: e.LogMaxBackups,
		MaxAgeDays: e.LogMaxAgeDays,
		Compress:   e.LogCompress,
	}
}

func (e *BaseEnv) Addr() string {
	return e.HTTPHost + ":" + e.HTTPPort
}

func (e *StorageEnv) StorageConfig() storage.Config {
	return storage.Config{
		Type:     e.Type,
		BaseDir:  e.BaseDir,
		S3Bucket: e.S3Bucket,
		S3Prefix: e.S3Prefix,
		S3Region: e.S3Region,
	}
}

// PushEnabled reports whether both VAPID keys are configured.
func (e *PushEnv) PushEnabled() bool {
	return e.VAPIDPublicKey != "" && e.VAPIDPrivateKey != ""
}
