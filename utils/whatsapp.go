package utils

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"storefront-api/models"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageSender delivers a single WhatsApp message
type MessageSender interface {
	SendWhatsApp(to, body string) error
}

type twilioSender struct {
	client *twilio.RestClient
	from   string
}

func (s *twilioSender) SendWhatsApp(to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(whatsAppAddress(to))
	params.SetFrom(whatsAppAddress(s.from))
	params.SetBody(body)
	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return err
	}
	if resp.Sid != nil {
		log.Printf("twilio message sid %s", *resp.Sid)
	}
	return nil
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

type logSender struct{}

func (logSender) SendWhatsApp(to, body string) error {
	log.Printf("whatsapp (not delivered) to=%s body=%q", to, body)
	return nil
}

// WhatsAppService sends messages in the background like EmailService
type WhatsAppService struct {
	sender MessageSender
	wg     sync.WaitGroup
}

// NewWhatsAppService uses Twilio when credentials are configured and
// otherwise only logs messages.
func NewWhatsAppService(cfg *Config) *WhatsAppService {
	if cfg.TwilioSID == "" || cfg.TwilioAuthToken == "" || cfg.WhatsAppFrom == "" {
		return NewWhatsAppServiceWithSender(logSender{})
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioSID,
		Password: cfg.TwilioAuthToken,
	})
	return NewWhatsAppServiceWithSender(&twilioSender{client: client, from: cfg.WhatsAppFrom})
}

func NewWhatsAppServiceWithSender(sender MessageSender) *WhatsAppService {
	return &WhatsAppService{sender: sender}
}

func (ws *WhatsAppService) SendAsync(to, body string) {
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		if err := ws.sender.SendWhatsApp(to, body); err != nil {
			log.Printf("whatsapp to %s failed: %v", to, err)
			return
		}
		log.Printf("whatsapp to %s sent", to)
	}()
}

func (ws *WhatsAppService) Wait() {
	ws.wg.Wait()
}

// SendOrderUpdate tells the customer where their order stands
func (ws *WhatsAppService) SendOrderUpdate(to string, order models.Order) {
	ws.SendAsync(to, fmt.Sprintf("Your order %s is %s. Total: %.2f (%s).",
		order.InvoiceNumber(), order.OrderStatus, order.TotalAmount, order.PaymentStatus))
}
