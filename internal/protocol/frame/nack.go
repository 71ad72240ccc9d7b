package frame

import "encoding/binary"

// NackLen is the fixed size of a NACK indication, header included.
const NackLen = 10

// resultCodeTag is the result-code parameter tag, shared by every service.
const resultCodeTag = 0x00

// EncodeNack builds the 10-byte NACK indication:
// header, service, message id, param_count=1, result-code parameter.
func EncodeNack(service uint8, messageID uint16, result uint8, cancel bool) []byte {
	buf := make([]byte, NackLen)
	buf[0] = Header{FromDevice: true, Cancel: cancel, Seq: 0, Execute: true}.Byte()
	buf[1] = service
	binary.LittleEndian.PutUint16(buf[2:4], messageID)
	buf[4] = 0x01
	buf[5] = resultCodeTag
	buf[6] = 0x01
	buf[7] = 0x00
	buf[8] = 0x00
	buf[9] = result
	return buf
}
