// Package wire defines the binary contract exchanged with the analysis engine:
// the correlation envelope, the analysis request and response payloads, and the
// length-prefixed framing used on the transport.
//
// Messages are encoded in the protobuf wire format so the engine can decode them
// with its generated bindings. Field numbers are the schema version; decoders skip
// fields they do not know.
package wire
