// Package events is the outward notification channel of the asset pipeline.
//
// The scanner, the change watcher and the artifact generators publish
// progress and change events here; the presentation layer subscribes and
// forwards them (as server-sent events in this application). Components
// never communicate with each other through the bus, only through the
// catalog store.
//
// The bus is a thin wrapper over watermill's in-process gochannel pub/sub
// with JSON payloads, so the envelope format is identical whether events
// stay in-process or are later bridged to an external broker.
package events
