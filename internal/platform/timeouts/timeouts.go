// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// Publish caps a single session update publication.
const Publish = 2 * time.Second

// NATSConnect caps the initial broker connection attempt.
const NATSConnect = 5 * time.Second

// ActivityDrain caps how long the activity log flushes queued entries on close.
const ActivityDrain = 3 * time.Second
