package core

// Checksum is the additive digest carried by every fragment: the sum of
// all bytes into a uint64. It detects accidental corruption only.
func Checksum(b []byte) uint64 {
	var sum uint64
	for _, v := range b {
		sum += uint64(v)
	}
	return sum
}
