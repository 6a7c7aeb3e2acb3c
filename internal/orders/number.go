package orders

import (
	"crypto/rand"
	"fmt"
	"time"
)

// No 0/O/1/I so humans can read order numbers back over the phone.
const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const suffixLen = 5

// NewOrderNumber returns ORD-YYYYMMDD-XXXXX. Collisions are negligible
// (32^5 per day) and the unique constraint plus retry covers the rest.
func NewOrderNumber(now time.Time) string {
	var buf [suffixLen]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err) // crypto/rand failure is not recoverable
	}
	for i := range buf {
		buf[i] = numberAlphabet[int(buf[i])%len(numberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), buf)
}
