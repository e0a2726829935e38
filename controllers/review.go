package controllers

import (
	"errors"
	"net/http"
	"strings"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewController handles product reviews
type ReviewController struct {
	Store store.Store
}

func NewReviewController(s store.Store) *ReviewController {
	return &ReviewController{Store: s}
}

// GetProductReviews lists a product's reviews, newest first
func (rc *ReviewController) GetProductReviews(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	page, limit := utils.ParsePagination(r, 10)
	reviews, total, err := rc.Store.Reviews().ListByProduct(ctx, productID, store.Page{Page: page, Limit: limit})
	if err != nil {
		utils.WriteServerError(w, "Error fetching reviews", err)
		return
	}
	avg, count, err := rc.Store.Reviews().Summary(ctx, productID)
	if err != nil {
		utils.WriteServerError(w, "Error fetching reviews", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"reviews":       reviews,
		"averageRating": models.Sum(avg),
		"numReviews":    count,
		"pagination":    utils.NewPagination(page, limit, total),
	})
}

// CreateReview rates a product the caller received in a delivered order
func (rc *ReviewController) CreateReview(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	var req struct {
		OrderID primitive.ObjectID `json:"orderId"`
		Rating  int                `json:"rating"`
		Title   string             `json:"title"`
		Comment string             `json:"comment"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if req.OrderID.IsZero() {
		utils.WriteError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	review := models.Review{
		User:    userID,
		Product: productID,
		Order:   req.OrderID,
		Rating:  req.Rating,
		Title:   strings.TrimSpace(req.Title),
		Comment: strings.TrimSpace(req.Comment),
	}
	if err := review.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := rc.Store.Products().FindByID(ctx, productID); err != nil {
		lookupError(w, err, "Product not found")
		return
	}
	order, err := rc.Store.Orders().FindByID(ctx, req.OrderID)
	if err != nil {
		lookupError(w, err, "Order not found")
		return
	}
	if order.User != userID {
		utils.WriteError(w, http.StatusForbidden, "You can only review your own orders")
		return
	}
	if !order.ContainsProduct(productID) {
		utils.WriteError(w, http.StatusBadRequest, "This order does not contain the product")
		return
	}
	if order.OrderStatus != models.OrderStatusDelivered {
		utils.WriteError(w, http.StatusBadRequest, "You can only review delivered orders")
		return
	}

	user, err := rc.Store.Users().FindByID(ctx, userID)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}
	review.UserName = user.Name

	if err := rc.Store.Reviews().Create(ctx, &review); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.WriteError(w, http.StatusBadRequest, "You have already reviewed this product for this order")
			return
		}
		utils.WriteServerError(w, "Error creating review", err)
		return
	}

	avg, count, err := rc.Store.Reviews().Summary(ctx, productID)
	if err != nil {
		utils.WriteServerError(w, "Error updating rating", err)
		return
	}
	if err := rc.Store.Products().SetRating(ctx, productID, models.Sum(avg), count); err != nil {
		utils.WriteServerError(w, "Error updating rating", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.M{"message": "Review added", "review": review})
}
