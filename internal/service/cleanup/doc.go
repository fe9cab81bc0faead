// Package cleanup reclaims storage from sessions past their retention window
// and from files no database row references anymore.
//
// A run is two independent sweeps. The expiry sweep flips overdue sessions to
// expired and cascades their staged rows and files. The orphan sweep lists
// the file store and deletes keys nothing references, catching leftovers from
// failed deletes and crashed parses. A distributed lock keeps concurrent
// runs (multiple workers, or a worker racing the manual trigger) down to one.
package cleanup
