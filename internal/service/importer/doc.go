// Package importer promotes reviewed staged data into production catalog
// tables. An import is all-or-nothing: every staged row for the session is
// copied in one database transaction, and the session is flipped to imported
// inside that same transaction so a second import attempt cannot commit.
package importer
