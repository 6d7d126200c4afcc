// Package domain contains the core entities of the orchestration engine:
// tasks, tracked task records, runs, agent results, and the status
// machines that govern their lifecycles. Entities are passive data with
// validation; all behavior lives in the engine and store packages.
package domain
