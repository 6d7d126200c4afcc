// Package store defines the persistence contracts for task and run records
// along with the common error types shared by all store implementations.
// Concrete implementations live under internal/platform.
package store
