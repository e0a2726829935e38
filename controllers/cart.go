package controllers

import (
	"context"
	"errors"
	"net/http"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartController handles the caller's server-side cart
type CartController struct {
	Store store.Store
}

// NewCartController creates a new CartController
func NewCartController(s store.Store) *CartController {
	return &CartController{Store: s}
}

// loadCart returns the user's cart, or a new empty one when none is stored
func (cc *CartController) loadCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	cart, err := cc.Store.Carts().Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Cart{User: userID, Items: []models.CartItem{}}, nil
	}
	return cart, err
}

func writeCart(w http.ResponseWriter, cart *models.Cart) {
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"cart":        cart,
		"totalItems":  cart.TotalItems(),
		"totalAmount": cart.TotalAmount(),
	})
}

// GetCart retrieves the caller's cart with its totals
func (cc *CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	cart, err := cc.loadCart(ctx, userID)
	if err != nil {
		utils.WriteServerError(w, "Error fetching cart", err)
		return
	}
	writeCart(w, cart)
}

// AddToCart adds a product to the cart. The same product with the same
// variations merges into one line priced when it was first added.
func (cc *CartController) AddToCart(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		ProductID  primitive.ObjectID `json:"productId"`
		Quantity   *int               `json:"quantity"`
		Variations map[string]string  `json:"variations"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if req.ProductID.IsZero() {
		utils.WriteError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if quantity < 1 {
		utils.WriteError(w, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	product, err := cc.Store.Products().FindByID(ctx, req.ProductID)
	if err != nil {
		lookupError(w, err, "Product not found")
		return
	}
	if !product.IsActive {
		utils.WriteError(w, http.StatusBadRequest, "Product is not available")
		return
	}

	cart, err := cc.loadCart(ctx, userID)
	if err != nil {
		utils.WriteServerError(w, "Error fetching cart", err)
		return
	}
	idx := cart.Find(product.ID, req.Variations)
	total := quantity
	if idx >= 0 {
		total += cart.Items[idx].Quantity
	}
	if total > product.Stock {
		utils.WriteError(w, http.StatusBadRequest, "Insufficient stock")
		return
	}
	if idx >= 0 {
		cart.Items[idx].Quantity = total
	} else {
		cart.Items = append(cart.Items, models.CartItem{
			Product:     product.ID,
			Quantity:    quantity,
			Variations:  req.Variations,
			PriceAtTime: product.FinalPrice(),
		})
	}

	if err := cc.Store.Carts().Save(ctx, cart); err != nil {
		utils.WriteServerError(w, "Error updating cart", err)
		return
	}
	writeCart(w, cart)
}

// UpdateCartItem sets the quantity of a product's line; zero or less removes it
func (cc *CartController) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productId", "product")
	if !ok {
		return
	}
	var req struct {
		Quantity   int               `json:"quantity"`
		Variations map[string]string `json:"variations"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	cart, err := cc.Store.Carts().Get(ctx, userID)
	if err != nil {
		lookupError(w, err, "Cart not found")
		return
	}

	if req.Quantity <= 0 {
		if !cart.RemoveProduct(productID) {
			utils.WriteError(w, http.StatusNotFound, "Item not in cart")
			return
		}
	} else {
		idx := cart.Find(productID, req.Variations)
		if idx < 0 && req.Variations == nil {
			for i, it := range cart.Items {
				if it.Product == productID {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			utils.WriteError(w, http.StatusNotFound, "Item not in cart")
			return
		}
		product, err := cc.Store.Products().FindByID(ctx, productID)
		if err != nil {
			lookupError(w, err, "Product not found")
			return
		}
		if req.Quantity > product.Stock {
			utils.WriteError(w, http.StatusBadRequest, "Insufficient stock")
			return
		}
		cart.Items[idx].Quantity = req.Quantity
	}

	if err := cc.Store.Carts().Save(ctx, cart); err != nil {
		utils.WriteServerError(w, "Error updating cart", err)
		return
	}
	writeCart(w, cart)
}

// RemoveFromCart drops every line for a product
func (cc *CartController) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productId", "product")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	cart, err := cc.Store.Carts().Get(ctx, userID)
	if err != nil {
		lookupError(w, err, "Cart not found")
		return
	}
	if !cart.RemoveProduct(productID) {
		utils.WriteError(w, http.StatusNotFound, "Item not in cart")
		return
	}
	if err := cc.Store.Carts().Save(ctx, cart); err != nil {
		utils.WriteServerError(w, "Error updating cart", err)
		return
	}
	writeCart(w, cart)
}

// ClearCart empties the caller's cart
func (cc *CartController) ClearCart(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	if err := cc.Store.Carts().Delete(ctx, userID); err != nil {
		utils.WriteServerError(w, "Error clearing cart", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Cart cleared"})
}
