// Package ref issues the human-readable reference numbers stamped on
// orders, receipts, purchase orders and stock movements.
package ref

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	PrefixOrder    = "ORD"
	PrefixReceipt  = "TXN"
	PrefixPurchase = "PO"
	PrefixMovement = "MOV"
)

// New returns prefix + "-" + 12 uppercase hex characters drawn from a
// random UUID. 48 bits of entropy keeps tens of thousands of references
// per prefix collision-free in practice.
func New(prefix string) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(hex.EncodeToString(id[:6])))
}
