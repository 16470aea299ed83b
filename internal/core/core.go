// Package core wires the engine subsystems together for the CLI entry
// points: datastore, legal hold registry, lifecycle machine, blob store,
// archive manager and retention evaluator share one construction path.
package core

import (
	"github.com/mkarling/podkeeper/internal/archive"
	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/blob"
	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/legalhold"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/retention"
	"github.com/mkarling/podkeeper/internal/routing"
)

// Core holds the wired engine subsystems.
type Core struct {
	Settings  *conf.Settings
	Store     datastore.Interface
	Sink      audit.Sink
	Holds     *legalhold.Registry
	Machine   *lifecycle.Machine
	Blobs     blob.Store
	Archiver  *archive.Manager
	Retention *retention.Evaluator
	Routing   *routing.Engine
}

// Build opens the datastore and wires every subsystem on top of it.
func Build(settings *conf.Settings) (*Core, error) {
	store, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, errors.New(err).
			Component("core").
			Category(errors.CategoryDatabase).
			Context("operation", "open datastore").
			Build()
	}

	sink := audit.NewLogger(store)
	holds := legalhold.NewRegistry(store, sink)
	machine := lifecycle.NewMachine(store, holds, sink)
	blobs := blob.NewLocalStore(settings.Archive.BlobPath)
	archiver := archive.NewManager(settings.Archive, store, machine, holds, blobs, sink)
	evaluator := retention.NewEvaluator(settings.Retention, store, machine, archiver, holds, sink)
	engine := routing.NewEngine(settings.Routing, routing.NewRulesCacheFromSettings(settings.Routing))

	return &Core{
		Settings:  settings,
		Store:     store,
		Sink:      sink,
		Holds:     holds,
		Machine:   machine,
		Blobs:     blobs,
		Archiver:  archiver,
		Retention: evaluator,
		Routing:   engine,
	}, nil
}

// Close releases the datastore connection.
func (c *Core) Close() error {
	return c.Store.Close()
}
