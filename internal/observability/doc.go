// Package observability persists radar session events as JSON Lines and
// derives sync metrics and alerts from them on demand.
package observability
