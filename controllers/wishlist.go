package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WishlistController struct {
	Store store.Store
}

func NewWishlistController(s store.Store) *WishlistController {
	return &WishlistController{Store: s}
}

func (wc *WishlistController) load(ctx context.Context, userID primitive.ObjectID) (*models.Wishlist, error) {
	wishlist, err := wc.Store.Wishlists().Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Wishlist{User: userID, Items: []models.WishlistItem{}}, nil
	}
	return wishlist, err
}

// respond writes the wishlist together with the products it references.
// Products deleted since they were saved are left out of products.
func (wc *WishlistController) respond(ctx context.Context, w http.ResponseWriter, wishlist *models.Wishlist) {
	ids := make([]primitive.ObjectID, 0, len(wishlist.Items))
	for _, it := range wishlist.Items {
		ids = append(ids, it.Product)
	}
	products, err := wc.Store.Products().FindByIDs(ctx, ids)
	if err != nil {
		utils.WriteServerError(w, "Error fetching products", err)
		return
	}
	if wishlist.Items == nil {
		wishlist.Items = []models.WishlistItem{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"wishlist": wishlist, "products": viewProducts(products)})
}

func (wc *WishlistController) GetWishlist(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	wishlist, err := wc.load(ctx, userID)
	if err != nil {
		utils.WriteServerError(w, "Error fetching wishlist", err)
		return
	}
	wc.respond(ctx, w, wishlist)
}

// AddToWishlist saves a product; adding one already saved changes nothing
func (wc *WishlistController) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		ProductID primitive.ObjectID `json:"productId"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if req.ProductID.IsZero() {
		utils.WriteError(w, http.StatusBadRequest, "productId is required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := wc.Store.Products().FindByID(ctx, req.ProductID); err != nil {
		lookupError(w, err, "Product not found")
		return
	}
	wishlist, err := wc.load(ctx, userID)
	if err != nil {
		utils.WriteServerError(w, "Error fetching wishlist", err)
		return
	}
	if !wishlist.Contains(req.ProductID) {
		wishlist.Items = append(wishlist.Items, models.WishlistItem{Product: req.ProductID, AddedAt: time.Now().UTC()})
		if err := wc.Store.Wishlists().Save(ctx, wishlist); err != nil {
			utils.WriteServerError(w, "Error updating wishlist", err)
			return
		}
	}
	wc.respond(ctx, w, wishlist)
}

func (wc *WishlistController) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
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

	wishlist, err := wc.load(ctx, userID)
	if err != nil {
		utils.WriteServerError(w, "Error fetching wishlist", err)
		return
	}
	if !wishlist.Remove(productID) {
		utils.WriteError(w, http.StatusNotFound, "Product not in wishlist")
		return
	}
	if err := wc.Store.Wishlists().Save(ctx, wishlist); err != nil {
		utils.WriteServerError(w, "Error updating wishlist", err)
		return
	}
	wc.respond(ctx, w, wishlist)
}
