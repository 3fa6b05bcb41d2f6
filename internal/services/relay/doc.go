// Package relay implements fan-out of live broadcast events to downstream
// subscribers.
//
// It keeps upstream connection lifecycle, duplicate suppression, and
// subscriber multiplexing isolated from the broadcast-source protocol so
// the upstream client remains the source of truth for raw events.
package relay
