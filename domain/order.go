package domain

import "time"

// CartItem is one line of a shopper's cart. Option is the selected product variant, if any.
type CartItem struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	OwnerID   string    `json:"owner_id" bson:"owner_id"`
	ProductID string    `json:"product_id" bson:"product_id"`
	Option    *string   `json:"option,omitempty" bson:"option,omitempty"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	AddedAt   time.Time `json:"added_at" bson:"added_at"`
}

type Order struct {
	ID         string
	CheckoutID string
	OwnerID    string
	ShippingDetails
	CreatedAt time.Time
}

// OrderLine is immutable once written. CartItemID keeps retries of the same
// materialization from writing a line twice.
type OrderLine struct {
	ID         int64
	OrderID    string
	CartItemID string
	ProductID  string
	Option     *string
	Quantity   int
}
