package integrity

import (
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/config"
	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/duplicates"
	"github.com/camden-git/mediasysintegrity/policy"
	"github.com/camden-git/mediasysintegrity/realtime"
)

// Options tunes batching and report shaping.
type Options struct {
	PageSize           int
	ExistenceBatchSize int
	WriteBatchSize     int
	DeleteDelay        time.Duration
	SampleSize         int
	RepairIDLimit      int
	Concurrency        int
}

// OptionsFromConfig copies the relevant settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		PageSize:           cfg.ScanPageSize,
		ExistenceBatchSize: cfg.ExistenceBatchSize,
		WriteBatchSize:     cfg.WriteBatchSize,
		DeleteDelay:        cfg.DestructiveBatchDelay,
		SampleSize:         cfg.ReportSampleSize,
		RepairIDLimit:      cfg.RepairIDLimit,
		Concurrency:        cfg.DetectorConcurrency,
	}
}

// Engine runs audits and repairs against the store it was built with. It is
// stateless between calls; every operation re-reads the policy and the data.
type Engine struct {
	DB         *gorm.DB
	Scanner    *database.Scanner
	Writer     *database.Writer
	Policy     policy.Source
	Duplicates *duplicates.Resolver
	Events     realtime.Publisher

	SampleSize         int
	RepairIDLimit      int
	ExistenceBatchSize int
	Concurrency        int
}

// NewEngine wires an engine. A nil publisher discards events and a nil
// resolver skips duplicate detection.
func NewEngine(db *gorm.DB, src policy.Source, resolver *duplicates.Resolver, events realtime.Publisher, opts Options) *Engine {
	if events == nil {
		events = realtime.Discard{}
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = 10
	}
	if opts.RepairIDLimit <= 0 {
		opts.RepairIDLimit = 100
	}
	if opts.ExistenceBatchSize <= 0 {
		opts.ExistenceBatchSize = database.DefaultExistenceBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Engine{
		DB:                 db,
		Scanner:            database.NewScanner(db, opts.PageSize),
		Writer:             database.NewWriter(db, opts.WriteBatchSize, opts.DeleteDelay),
		Policy:             src,
		Duplicates:         resolver,
		Events:             events,
		SampleSize:         opts.SampleSize,
		RepairIDLimit:      opts.RepairIDLimit,
		ExistenceBatchSize: opts.ExistenceBatchSize,
		Concurrency:        opts.Concurrency,
	}
}
