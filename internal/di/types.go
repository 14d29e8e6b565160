// Package di wires the application's dependencies.
//
// The Container holds every long-lived service instance. It is built once in
// main and replaces package-level singletons.
package di

import (
	"github.com/aristath/dart-ebitda/internal/clientdata"
	"github.com/aristath/dart-ebitda/internal/clients/dart"
	"github.com/aristath/dart-ebitda/internal/corpcode"
	"github.com/aristath/dart-ebitda/internal/ebitda"
	"github.com/aristath/dart-ebitda/internal/financials"
	"github.com/aristath/dart-ebitda/internal/ratelimit"
	"github.com/aristath/dart-ebitda/internal/retry"
	"github.com/aristath/dart-ebitda/internal/scheduler"
	"github.com/aristath/dart-ebitda/internal/snapshot"
)

// Container holds all application dependencies
type Container struct {
	// Upstream access
	Limiter     *ratelimit.Limiter
	RetryPolicy *retry.Policy
	DARTClient  *dart.Client

	// Storage
	Cache         *clientdata.Cache
	SnapshotStore snapshot.Store

	// Services
	Resolver         *corpcode.Resolver
	FinancialService *financials.Service
	Calculator       *ebitda.Calculator

	// Background jobs
	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances holds the registered maintenance jobs
type JobInstances struct {
	CacheCleanup    scheduler.Job
	CacheCheck      scheduler.Job
	CorpCodeRefresh scheduler.Job
}
