// Package payload keeps the latest request and response payload of every
// channel, with per-entry metadata, a frozen flag and a bounded history.
//
// Writes are last-write-wins: when several calls to one channel are in
// flight, whichever finishes last owns the response slot.
package payload
