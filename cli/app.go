package cli

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/config"
	"github.com/camden-git/mediasysintegrity/consistency"
	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/duplicates"
	"github.com/camden-git/mediasysintegrity/integrity"
	"github.com/camden-git/mediasysintegrity/policy"
	"github.com/camden-git/mediasysintegrity/realtime"
	"github.com/camden-git/mediasysintegrity/recognition"
)

// App holds the wired engine components for one process.
type App struct {
	Config   config.Config
	DB       *gorm.DB
	Policy   policy.Source
	Engine   *integrity.Engine
	Resolver *duplicates.Resolver
	Auditor  *consistency.Auditor
}

// NewApp wires every component over db. Events from all of them go to
// events.
func NewApp(cfg config.Config, db *gorm.DB, events realtime.Publisher) *App {
	src := policy.NewDBSource(db, policy.FileSource{Path: cfg.PolicyFile, Base: policy.Default()})
	if cfg.PolicyFile == "" {
		src = policy.NewDBSource(db, policy.Static(policy.Default()))
	}

	opts := integrity.OptionsFromConfig(cfg)
	scanner := database.NewScanner(db, cfg.ScanPageSize)
	writer := database.NewWriter(db, cfg.WriteBatchSize, cfg.DestructiveBatchDelay)

	resolver := duplicates.NewResolver(db, scanner, writer, src, events)

	var rebuilder consistency.IndexRebuilder
	if client := recognition.NewClient(cfg.RecognitionServiceURL, cfg.RecognitionTimeout); client != nil {
		rebuilder = client
	}

	return &App{
		Config:   cfg,
		DB:       db,
		Policy:   src,
		Engine:   integrity.NewEngine(db, src, resolver, events, opts),
		Resolver: resolver,
		Auditor:  consistency.NewAuditor(db, scanner, src, events, rebuilder),
	}
}

// OpenApp connects to the configured database, migrates it and wires an App.
func OpenApp(cfg config.Config, events realtime.Publisher) (*App, error) {
	db, err := database.InitGormDB(cfg.DatabasePath, cfg.DBLogLevel)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, err
	}
	return NewApp(cfg, db, events), nil
}

// Close releases the database connection pool.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
