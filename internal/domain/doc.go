// Package domain holds the core entity types shared across the catalog
// ingestion pipeline: upload sessions, staged entities awaiting review, and
// the result types returned by import and cleanup operations.
//
// Types here carry no behavior beyond simple predicates. Business logic lives
// in the service packages; persistence lives in repository/postgres.
package domain
