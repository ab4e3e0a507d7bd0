// Package gps polls a location provider (gpsd) for position fixes.
//
// The provider is consumed through the Session interface:
// - Watch/Unwatch toggle streaming reports
// - Wait blocks until data is ready or a timeout expires
// - Read decodes one report into an Update
//
// Poller drives a Session until a fatal condition and hands every fix with
// finite coordinates to a Reporter.
package gps
