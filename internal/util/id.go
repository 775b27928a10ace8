package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random UUID, optionally prefixed.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewTransactionNumber builds TXN-<unix ms>-<6 base36 chars>.
func NewTransactionNumber(now time.Time) string {
	var suffix strings.Builder
	for range 6 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36))))
		if err != nil {
			suffix.WriteByte('0')
			continue
		}
		suffix.WriteByte(base36[n.Int64()])
	}
	return fmt.Sprintf("TXN-%d-%s", now.UnixMilli(), strings.ToUpper(suffix.String()))
}
