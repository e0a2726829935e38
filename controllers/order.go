package controllers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Live order feed event types
const (
	EventOrderCreated = "order:created"
	EventOrderUpdated = "order:updated"
)

// Broadcaster publishes events to live dashboards
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// OrderController handles order-related requests
type OrderController struct {
	Store    store.Store
	Payments utils.PaymentGateway
	Live     Broadcaster
	Company  utils.CompanyInfo
}

// NewOrderController creates a new OrderController. payments and live may be nil.
func NewOrderController(s store.Store, payments utils.PaymentGateway, live Broadcaster, company utils.CompanyInfo) *OrderController {
	return &OrderController{Store: s, Payments: payments, Live: live, Company: company}
}

func (oc *OrderController) publish(eventType string, order *models.Order) {
	if oc.Live != nil {
		oc.Live.Broadcast(eventType, order)
	}
}

type placeOrderRequest struct {
	Items           []models.OrderItem `json:"items"`
	ShippingAddress models.Address     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Notes           string             `json:"notes"`
}

func (req *placeOrderRequest) validate() string {
	if len(req.Items) == 0 {
		return "Cart is empty"
	}
	for _, it := range req.Items {
		if it.Product.IsZero() {
			return "Every item needs a product"
		}
		if it.Quantity < 1 {
			return "Item quantity must be at least 1"
		}
		if it.Price < 0 {
			return "Item price must not be negative"
		}
	}
	if err := req.ShippingAddress.ValidateForShipping(); err != nil {
		return err.Error()
	}
	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodCOD
	}
	if req.PaymentMethod != models.PaymentMethodCOD && req.PaymentMethod != models.PaymentMethodCard {
		return "Invalid payment method"
	}
	return ""
}

// fillItemDetails copies name and image from the catalog onto lines that arrived without them
func (oc *OrderController) fillItemDetails(ctx context.Context, items []models.OrderItem) error {
	var ids []primitive.ObjectID
	for _, it := range items {
		if it.Name == "" || it.Image == "" {
			ids = append(ids, it.Product)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	products, err := oc.Store.Products().FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for i := range items {
		p, ok := byID[items[i].Product]
		if !ok {
			continue
		}
		if items[i].Name == "" {
			items[i].Name = p.Name
		}
		if items[i].Image == "" && len(p.Images) > 0 {
			items[i].Image = p.Images[0]
		}
	}
	return nil
}

// CreateOrder places an order from the items in the request. The total is
// the sum of the submitted line prices times quantities.
func (oc *OrderController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := oc.fillItemDetails(ctx, req.Items); err != nil {
		utils.WriteServerError(w, "Error fetching products", err)
		return
	}

	order := &models.Order{
		User:            userID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
		OrderStatus:     models.OrderStatusPending,
		TotalAmount:     models.ComputeTotal(req.Items),
		Notes:           strings.TrimSpace(req.Notes),
	}
	if err := oc.Store.Orders().Create(ctx, order); err != nil {
		utils.WriteServerError(w, "Error creating order", err)
		return
	}

	if err := oc.Store.Carts().Delete(ctx, userID); err != nil {
		log.Printf("clear cart for %s after order %s: %v", userID.Hex(), order.ID.Hex(), err)
	}
	oc.publish(EventOrderCreated, order)

	utils.WriteJSON(w, http.StatusCreated, utils.M{"message": "Order placed successfully", "order": order})
}

// GetMyOrders lists the caller's orders, newest first
func (oc *OrderController) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	page, limit := utils.ParsePagination(r, 10)
	orders, total, err := oc.Store.Orders().List(ctx, store.OrderFilter{UserID: &userID}, store.Page{Page: page, Limit: limit})
	if err != nil {
		utils.WriteServerError(w, "Error fetching orders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"orders":     orders,
		"pagination": utils.NewPagination(page, limit, total),
	})
}

// accessibleOrder loads the {id} order if the caller owns it or is an admin
func (oc *OrderController) accessibleOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	claims, userID, ok := caller(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return nil, false
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	order, err := oc.Store.Orders().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Order not found")
		return nil, false
	}
	if order.User != userID && claims.Role != models.RoleAdmin {
		utils.WriteError(w, http.StatusForbidden, "Not authorized to view this order")
		return nil, false
	}
	return order, true
}

// GetOrder returns one order to its owner or an admin
func (oc *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := oc.accessibleOrder(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

type invoiceLine struct {
	models.OrderItem
	LineTotal float64 `json:"lineTotal"`
}

type invoiceCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Invoice is assembled on request and never stored
type Invoice struct {
	InvoiceNumber   string            `json:"invoiceNumber"`
	InvoiceDate     time.Time         `json:"invoiceDate"`
	OrderID         string            `json:"orderId"`
	OrderDate       time.Time         `json:"orderDate"`
	Company         utils.CompanyInfo `json:"company"`
	Customer        invoiceCustomer   `json:"customer"`
	ShippingAddress models.Address    `json:"shippingAddress"`
	Items           []invoiceLine     `json:"items"`
	Subtotal        float64           `json:"subtotal"`
	TotalAmount     float64           `json:"totalAmount"`
	PaymentMethod   string            `json:"paymentMethod"`
	PaymentStatus   string            `json:"paymentStatus"`
	OrderStatus     string            `json:"orderStatus"`
}

func buildInvoice(order *models.Order, customer *models.User, company utils.CompanyInfo, now time.Time) Invoice {
	inv := Invoice{
		InvoiceNumber:   order.InvoiceNumber(),
		InvoiceDate:     now,
		OrderID:         order.ID.Hex(),
		OrderDate:       order.CreatedAt,
		Company:         company,
		ShippingAddress: order.ShippingAddress,
		Items:           make([]invoiceLine, 0, len(order.Items)),
		Subtotal:        models.ComputeTotal(order.Items),
		TotalAmount:     order.TotalAmount,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		OrderStatus:     order.OrderStatus,
	}
	for _, it := range order.Items {
		inv.Items = append(inv.Items, invoiceLine{OrderItem: it, LineTotal: models.LineTotal(it.Price, it.Quantity)})
	}
	if customer != nil {
		inv.Customer = invoiceCustomer{Name: customer.Name, Email: customer.Email, Phone: customer.Phone}
	} else {
		inv.Customer = invoiceCustomer{Name: order.ShippingAddress.FullName, Phone: order.ShippingAddress.Phone}
	}
	return inv
}

// GetInvoice returns printable invoice data for an order
func (oc *OrderController) GetInvoice(w http.ResponseWriter, r *http.Request) {
	order, ok := oc.accessibleOrder(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	customer, err := oc.Store.Users().FindByID(ctx, order.User)
	if err != nil {
		log.Printf("invoice %s: customer lookup: %v", order.ID.Hex(), err)
		customer = nil
	}
	utils.WriteJSON(w, http.StatusOK, buildInvoice(order, customer, oc.Company, time.Now().UTC()))
}

// UpdateOrderStatus sets the order and/or payment status (Admin only). Any
// status may follow any other.
func (oc *OrderController) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req struct {
		Status        string `json:"status"`
		OrderStatus   string `json:"orderStatus"`
		PaymentStatus string `json:"paymentStatus"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	status := req.Status
	if status == "" {
		status = req.OrderStatus
	}
	if status == "" && req.PaymentStatus == "" {
		utils.WriteError(w, http.StatusBadRequest, "status or paymentStatus is required")
		return
	}
	if status != "" && !models.IsValidOrderStatus(status) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid order status")
		return
	}
	if req.PaymentStatus != "" && !models.IsValidPaymentStatus(req.PaymentStatus) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid payment status")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	order, err := oc.Store.Orders().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Order not found")
		return
	}
	if status != "" {
		order.OrderStatus = status
		if status == models.OrderStatusDelivered && order.DeliveredAt == nil {
			now := time.Now().UTC()
			order.DeliveredAt = &now
		}
	}
	if req.PaymentStatus != "" {
		order.PaymentStatus = req.PaymentStatus
	}
	if err := oc.Store.Orders().Update(ctx, order); err != nil {
		lookupError(w, err, "Order not found")
		return
	}
	oc.publish(EventOrderUpdated, order)
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Order updated", "order": order})
}

// PayOrder opens a card payment for the caller's order
func (oc *OrderController) PayOrder(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	if oc.Payments == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Card payments are not configured")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	order, err := oc.Store.Orders().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Order not found")
		return
	}
	if order.User != userID {
		utils.WriteError(w, http.StatusForbidden, "Not authorized to pay for this order")
		return
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		utils.WriteError(w, http.StatusBadRequest, "Order is already paid")
		return
	}
	if order.OrderStatus == models.OrderStatusCancelled {
		utils.WriteError(w, http.StatusBadRequest, "Order is cancelled")
		return
	}

	intent, err := oc.Payments.CreateIntent(ctx, order)
	if err != nil {
		log.Printf("payment intent for order %s: %v", order.ID.Hex(), err)
		utils.WriteError(w, http.StatusBadGateway, "Payment provider error")
		return
	}
	order.PaymentIntentID = intent.ID
	order.PaymentMethod = models.PaymentMethodCard
	if err := oc.Store.Orders().Update(ctx, order); err != nil {
		utils.WriteServerError(w, "Error updating order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"paymentIntent": intent, "order": order})
}
