// Package memory provides a map-backed KVEngine implementation.
//
// The memory engine keeps all data in process memory and loses it on
// restart. It exists for tests and for ephemeral nodes that opt out of
// disk persistence.
package memory
