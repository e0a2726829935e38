package controllers

import (
	"net/http"
	"strings"

	"storefront-api/store"
	"storefront-api/utils"
)

// NotifyController lets admins message customers. Every send is queued and
// answered with 202 before delivery.
type NotifyController struct {
	Store    store.Store
	Email    *utils.EmailService
	WhatsApp *utils.WhatsAppService
	Company  string
}

func NewNotifyController(s store.Store, email *utils.EmailService, whatsapp *utils.WhatsAppService, company string) *NotifyController {
	return &NotifyController{Store: s, Email: email, WhatsApp: whatsapp, Company: company}
}

func (nc *NotifyController) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" || strings.TrimSpace(req.Message) == "" {
		utils.WriteError(w, http.StatusBadRequest, "to and message are required")
		return
	}
	if req.Subject == "" {
		req.Subject = "A message from " + nc.Company
	}
	nc.Email.SendMessage(req.To, req.Subject, req.Message)
	utils.WriteJSON(w, http.StatusAccepted, utils.M{"message": "Email queued"})
}

func (nc *NotifyController) SendWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" || strings.TrimSpace(req.Message) == "" {
		utils.WriteError(w, http.StatusBadRequest, "to and message are required")
		return
	}
	nc.WhatsApp.SendAsync(req.To, req.Message)
	utils.WriteJSON(w, http.StatusAccepted, utils.M{"message": "WhatsApp message queued"})
}

// NotifyOrder tells the order's customer its current status by email, and by
// WhatsApp when the shipping address carries a phone number.
func (nc *NotifyController) NotifyOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	order, err := nc.Store.Orders().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Order not found")
		return
	}
	user, err := nc.Store.Users().FindByID(ctx, order.User)
	if err != nil {
		lookupError(w, err, "Customer not found")
		return
	}

	channels := []string{"email"}
	nc.Email.SendOrderConfirmationEmail(user.Email, *order)
	phone := strings.TrimSpace(order.ShippingAddress.Phone)
	if phone != "" {
		nc.WhatsApp.SendOrderUpdate(phone, *order)
		channels = append(channels, "whatsapp")
	}
	utils.WriteJSON(w, http.StatusAccepted, utils.M{"message": "Notification queued", "channels": channels})
}
