package types

import "time"

// Config represents the main configuration structure
type Config struct {
	Version    string     `yaml:"version"`
	Database   Database   `yaml:"database"`
	Migration  Migration  `yaml:"migration"`
	Report     Report     `yaml:"report"`
	Processing Processing `yaml:"processing"`
}

// Database holds metadata database connection configuration
type Database struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	// Path is the database file for sqlite.
	Path    string `yaml:"path"`
	SSLMode string `yaml:"sslmode"`
}

// Migration holds batch driver settings
type Migration struct {
	BatchSize     int   `yaml:"batch_size"`
	DryRun        bool  `yaml:"dry_run"`
	ResumeAfterID int64 `yaml:"resume_after_id"`
	// HeartbeatBatchInterval controls how many pages between PROGRESS heartbeats
	HeartbeatBatchInterval int `yaml:"heartbeat_batch_interval"`
}

// Report holds query-context reconciliation output settings
type Report struct {
	Dir string `yaml:"dir"`
}

// Processing holds processing configuration
type Processing struct {
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
}

// Slice is one saved chart row.
type Slice struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	SliceName    string  `gorm:"column:slice_name;size:250"`
	VizType      string  `gorm:"column:viz_type;size:250;index"`
	Params       string  `gorm:"column:params;type:text"`
	QueryContext *string `gorm:"column:query_context;type:text"`
}

func (Slice) TableName() string { return "slices" }

// Failure kinds recorded by the batch driver.
const (
	FailureDecode               = "decode"
	FailureHook                 = "hook"
	FailureDowngradeUnsupported = "downgrade_unsupported"
	FailurePersistence          = "persistence"
)

// RowFailure describes one chart row the batch driver left untouched.
type RowFailure struct {
	SliceID int64
	VizType string
	Kind    string
	Err     error
}

// MigrationResult holds the result of a migration run
type MigrationResult struct {
	RunID     string
	VizType   string
	Direction string
	Processed int
	Skipped   int
	Failures  []RowFailure
	LastID    int64
	DryRun    bool
	Duration  time.Duration
}

// ReconcileResult holds the result of a query-context reconciliation run
type ReconcileResult struct {
	RunID      string
	ReportPath string
	Checked    int
	Mismatches int
	Errors     int
}
