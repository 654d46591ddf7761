package model

import "time"

// Product is the minimal slice of the catalog that the bidding engine
// needs: enough to verify ownership when an auction is opened and to
// enforce the no-self-bidding rule. Catalog management itself lives in a
// separate service.
type Product struct {
	ID        uint64
	SellerID  uint64
	Title     string
	CreatedAt time.Time
}
