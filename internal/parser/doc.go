// Package parser runs catalog extraction in the background.
//
// The Runner owns the session lifecycle from uploading through completed or
// failed: it flips the session to parsing, streams extracted entities into
// the staging tables, publishes hot progress to the cache, and records the
// terminal status exactly once, panics included. The actual document
// understanding sits behind the Extractor interface so extraction engines
// can be swapped without touching lifecycle code.
package parser
