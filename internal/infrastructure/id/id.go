package id

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UUIDGenerator issues random v4 identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// OrderNumberGenerator issues human readable numbers like MS-20260118-7K3Q9D.
type OrderNumberGenerator struct {
	Prefix string
	Now    func() time.Time
}

func NewOrderNumberGenerator() *OrderNumberGenerator {
	return &OrderNumberGenerator{Prefix: "MS", Now: time.Now}
}

func (g *OrderNumberGenerator) NextOrderNumber() (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("order number: %w", err)
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = crockford[int(b)%len(crockford)]
	}
	return fmt.Sprintf("%s-%s-%s", g.Prefix, g.Now().UTC().Format("20060102"), suffix), nil
}
