package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WishlistItem struct {
	Product primitive.ObjectID `bson:"product" json:"product"`
	AddedAt time.Time          `bson:"addedAt" json:"addedAt"`
}

// Wishlist holds the products a user saved for later. One per user.
type Wishlist struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User  primitive.ObjectID `bson:"user" json:"user"`
	Items []WishlistItem     `bson:"items" json:"items"`
}

func (w *Wishlist) Contains(product primitive.ObjectID) bool {
	for _, it := range w.Items {
		if it.Product == product {
			return true
		}
	}
	return false
}

func (w *Wishlist) Remove(product primitive.ObjectID) bool {
	for i, it := range w.Items {
		if it.Product == product {
			w.Items = append(w.Items[:i], w.Items[i+1:]...)
			return true
		}
	}
	return false
}
