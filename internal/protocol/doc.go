// Package protocol owns the PDLP wire contract shared by every layer.
//
// Ownership boundary:
// - service ids and result codes
// - assembled service message view
// - error taxonomy mapped onto wire result codes
//
// Segment header primitives live in frame, parameter primitives in tlv,
// per-message parameter schemas in schema.
package protocol
