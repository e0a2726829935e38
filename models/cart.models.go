package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartItem represents an item in the cart
type CartItem struct {
	Product     primitive.ObjectID `bson:"product" json:"product"`
	Quantity    int                `bson:"quantity" json:"quantity"`
	Variations  map[string]string  `bson:"variations,omitempty" json:"variations,omitempty"`
	PriceAtTime float64            `bson:"priceAtTime" json:"priceAtTime"`
}

// Cart represents a user's shopping cart
type Cart struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User      primitive.ObjectID `bson:"user" json:"user"`
	Items     []CartItem         `bson:"items" json:"items"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Find returns the index of the line holding product with exactly these
// variations, or -1.
func (c *Cart) Find(product primitive.ObjectID, variations map[string]string) int {
	for i, it := range c.Items {
		if it.Product == product && sameVariations(it.Variations, variations) {
			return i
		}
	}
	return -1
}

// RemoveProduct drops every line for product and reports whether any was removed
func (c *Cart) RemoveProduct(product primitive.ObjectID) bool {
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.Product != product {
			kept = append(kept, it)
		}
	}
	removed := len(kept) != len(c.Items)
	c.Items = kept
	return removed
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// TotalAmount sums the lines at the price recorded when each was added
func (c *Cart) TotalAmount() float64 {
	var t Tally
	for _, it := range c.Items {
		t.AddLine(it.PriceAtTime, it.Quantity)
	}
	return t.Total()
}

func sameVariations(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
