package cab

import "encoding/binary"

// checksum implements the CAB-specific folded 32-bit XOR checksum used by
// CFDATA records ([MS-CAB] 2.9). It is seeded so that callers can chain two
// passes, as a record's checksum is computed once over the payload and once
// more over the record's (cbData, cbUncomp) fields.
func checksum(data []byte, seed uint32) uint32 {
	acc := uint64(seed)
	i := 0
	n := len(data)
	for n-i >= 8 {
		acc ^= binary.LittleEndian.Uint64(data[i : i+8])
		i += 8
	}
	rem := n - i
	if rem >= 4 {
		acc ^= uint64(binary.LittleEndian.Uint32(data[i : i+4]))
		i += 4
		rem -= 4
	}
	for j := rem - 1; j >= 0; j-- {
		acc ^= uint64(data[i]) << uint(j*8)
		i++
	}
	return uint32(acc) ^ uint32(acc>>32)
}

// dataChecksum computes the checksum for a CFDATA record: first over the
// payload with seed 0, then over the little-endian (cbData, cbUncomp) pair
// seeded with the payload's checksum.
func dataChecksum(payload []byte, cbData, cbUncomp uint16) uint32 {
	s := checksum(payload, 0)
	var lens [4]byte
	binary.LittleEndian.PutUint16(lens[0:2], cbData)
	binary.LittleEndian.PutUint16(lens[2:4], cbUncomp)
	return checksum(lens[:], s)
}
