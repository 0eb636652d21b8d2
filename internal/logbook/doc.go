// Package logbook is the durable, queryable record of automation outcomes.
//
// Appends land in memory synchronously, newest first, and are pushed to
// connected tabs as logbook_entry events. A background flusher writes each
// dirty account's full snapshot to one JSON file on a fixed interval and
// again on shutdown. Snapshots are written to a temp file and renamed into
// place, so a crash mid-write never corrupts the existing file.
package logbook
