package modbus

// CRC16 computes the Modbus RTU checksum (reflected 0x8005, init 0xFFFF).
// It is sent low byte first.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

func appendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

func checkCRC(frame []byte) bool {
	n := len(frame)
	if n < 3 {
		return false
	}

	return CRC16(frame[:n-2]) == uint16(frame[n-2])|uint16(frame[n-1])<<8
}
