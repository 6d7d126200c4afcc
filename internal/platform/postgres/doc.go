// Package postgres implements the queue and store contracts on
// PostgreSQL via database/sql with the pgx driver. The queue relies on
// FOR UPDATE SKIP LOCKED to guarantee exclusive dequeue across any number
// of worker processes sharing one database.
package postgres
