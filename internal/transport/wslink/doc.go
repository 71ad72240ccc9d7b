// Package wslink carries link segments over websocket connections.
//
// Each websocket is one link connection. Every binary message starts with a
// one-byte kind:
//
//	0x01 segment  peer write
//	0x02          peer confirms the last indication
//	0x81 segment  device indication
//
// An indication that is not confirmed within the hub's indication timeout is
// reported to the link as a timeout.
package wslink
