// Package gateway provides the public API for embedding the PromptLink
// gateway. This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/promptlink-gateway/internal/runtime"
)

// Gateway is the main entry point for running the gateway.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithFileConfig("config.yaml"),
//	    gateway.WithSQLite("./data/promptlink.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite          = runtime.WithSQLite
	WithPostgres        = runtime.WithPostgres
	WithStorageProvider = runtime.WithStorageProvider
	WithSessionStore    = runtime.WithSessionStore

	// Policy
	WithBasicPolicy     = runtime.WithBasicPolicy
	WithRateLimitPolicy = runtime.WithRateLimitPolicy
	WithQualityPolicy   = runtime.WithQualityPolicy

	// Upstream and payments
	WithChatCompleter    = runtime.WithChatCompleter
	WithCheckoutProvider = runtime.WithCheckoutProvider

	WithLogger = runtime.WithLogger
)
