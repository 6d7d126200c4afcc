// Package memory provides in-process implementations of the queue and
// store contracts. They back the memory database driver for local
// development and give engine tests deterministic, dependency-free
// infrastructure. All state is lost on process exit.
package memory
