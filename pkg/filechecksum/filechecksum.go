package filechecksum

import (
	"crypto/sha256"
	"encoding/hex"
)

func Calculate(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Short returns the hex encoded first n bytes of the checksum.
// n is capped at the checksum size.
func Short(data []byte, n int) string {
	sum := Calculate(data)
	if n > len(sum) {
		n = len(sum)
	}
	return hex.EncodeToString(sum[:n])
}
