// Package persist defines the durable storage contracts for the state
// container: a byte-level Backend keyed by a single storage key, and a Codec
// that wraps state trees in a versioned envelope.
//
// Responsibilities:
//   - Backend only loads/saves one opaque payload per key; it makes no
//     assumptions about the payload shape.
//   - Codec produces the {state, version, timestamp} envelope and encodes
//     numeric buffers and timestamps losslessly, so a decode reconstructs the
//     original value kinds rather than generic mappings.
//   - Migrations upgrade envelopes written at older versions before the state
//     is adopted; a missing migration step fails the decode.
//
// The core store package stays storage-agnostic: it hands the codec a tree
// and hands the backend bytes, nothing more.
package persist
