package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product represents an item in the catalog
type Product struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name        string               `bson:"name" json:"name"`
	Description string               `bson:"description" json:"description"`
	Brand       string               `bson:"brand,omitempty" json:"brand,omitempty"`
	Price       float64              `bson:"price" json:"price"`
	Stock       int                  `bson:"stock" json:"stock"`
	Discount    float64              `bson:"discount" json:"discount"` // percent
	Images      []string             `bson:"images" json:"images"`
	Category    primitive.ObjectID   `bson:"category" json:"category"`
	Categories  []primitive.ObjectID `bson:"categories,omitempty" json:"categories,omitempty"`
	IsFeatured  bool                 `bson:"isFeatured" json:"isFeatured"`
	IsActive    bool                 `bson:"isActive" json:"isActive"`
	Rating      float64              `bson:"rating" json:"rating"`
	NumReviews  int                  `bson:"numReviews" json:"numReviews"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt" json:"updatedAt"`
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if p.Price < 0 {
		return errors.New("price must not be negative")
	}
	if p.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	if p.Discount < 0 || p.Discount > 100 {
		return errors.New("discount must be between 0 and 100")
	}
	if p.Category.IsZero() {
		return errors.New("category is required")
	}
	return nil
}

// FinalPrice is the price a customer pays after the discount
func (p *Product) FinalPrice() float64 {
	return ApplyDiscount(p.Price, p.Discount)
}

// InCategory reports whether the product is filed under id, either as its
// primary category or in the secondary list.
func (p *Product) InCategory(id primitive.ObjectID) bool {
	if p.Category == id {
		return true
	}
	for _, c := range p.Categories {
		if c == id {
			return true
		}
	}
	return false
}
