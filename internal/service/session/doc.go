// Package session implements upload-session lifecycle management.
//
// The service layer owns session creation (including document-format
// validation), status snapshots merged from the hot progress cache, and
// irreversible session deletion with per-entity accounting. It depends on
// repository interfaces defined in this package; implementations live in
// repository/postgres.
package session
