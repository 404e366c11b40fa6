package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".soda/state"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"soda/"`
	S3Region string `envconfig:"S3_REGION" default:"us-west-2"`
}

type WorkflowEnv struct {
	MaxWorkHours        float64       `envconfig:"WORKFLOW_MAX_WORK_HOURS" default:"8"`
	MaxStateHistory     int           `envconfig:"WORKFLOW_MAX_STATE_HISTORY" default:"100"`
	MaxRecoveryHistory  int           `envconfig:"WORKFLOW_MAX_RECOVERY_HISTORY" default:"50"`
	CheckpointRetention time.Duration `envconfig:"WORKFLOW_CHECKPOINT_RETENTION" default:"168h"`
	AutoSaveInterval    time.Duration `envconfig:"WORKFLOW_AUTOSAVE_INTERVAL" default:"30s"`
	IntegrityChecks     bool          `envconfig:"WORKFLOW_INTEGRITY_CHECKS" default:"true"`
	FreshWindow         time.Duration `envconfig:"WORKFLOW_FRESH_WINDOW" default:"24h"`
	StaleWindow         time.Duration `envconfig:"WORKFLOW_STALE_WINDOW" default:"168h"`
	FixScriptDir        string        `envconfig:"WORKFLOW_FIX_SCRIPT_DIR" default:".soda/fixes"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT"`
}

type Env struct {
	BaseEnv
	StorageEnv
	WorkflowEnv
	VAPIDEnv
}

const namespace = "SODA"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func WorkflowEnvFromEnv(env *Env) *WorkflowEnv {
	return &env.WorkflowEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
