package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/CatPortrait/internal/metrics"
	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/notify"
)

const (
	creemProvider        = "creem"
	creemEventCompleted  = "checkout.completed"
	creemStatusCompleted = "completed"
	creemStatusPaid      = "paid"
	creemStatusExpired   = "expired"
)

type CreemConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	SuccessURL    string
}

// Checkout is a created hosted-checkout session.
type Checkout struct {
	CheckoutID  string `json:"checkoutId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// PaymentState is the result of a verify call.
type PaymentState struct {
	CheckoutID string               `json:"checkoutId"`
	Status     models.PaymentStatus `json:"status"`
	PlanID     string               `json:"planId"`
	Points     int                  `json:"points"`
	Credited   bool                 `json:"credited"`
}

type PaymentService struct {
	cfg      CreemConfig
	payments PaymentStore
	plans    *PlanService
	notifier notify.Notifier
	metrics  *metrics.Metrics
	client   *http.Client
	log      *slog.Logger
}

func NewPaymentService(cfg CreemConfig, payments PaymentStore, plans *PlanService, notifier notify.Notifier, m *metrics.Metrics, log *slog.Logger) *PaymentService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PaymentService{
		cfg:      cfg,
		payments: payments,
		plans:    plans,
		notifier: notifier,
		metrics:  m,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type creemCheckoutRequest struct {
	ProductID  string            `json:"product_id"`
	RequestID  string            `json:"request_id"`
	SuccessURL string            `json:"success_url,omitempty"`
	Metadata   map[string]string `json:"metadata"`
}

type creemCheckout struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RequestID   string `json:"request_id"`
	CheckoutURL string `json:"checkout_url"`
	Product     struct {
		ID       string `json:"id"`
		Price    int    `json:"price"`
		Currency string `json:"currency"`
	} `json:"product"`
	Order *struct {
		Amount   int    `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	} `json:"order,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

// CreateCheckout opens a Creem checkout for planID and records it as pending.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID, planID string) (*Checkout, error) {
	if s.cfg.APIKey == "" {
		return nil, ErrPaymentsDisabled
	}
	offer, err := s.plans.Offer(planID)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	body, err := json.Marshal(creemCheckoutRequest{
		ProductID:  offer.ProductID,
		RequestID:  requestID,
		SuccessURL: s.cfg.SuccessURL,
		Metadata: map[string]string{
			"userId": userID,
			"planId": string(offer.ID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode checkout request: %w", err)
	}

	var checkout creemCheckout
	if err := s.do(ctx, http.MethodPost, "/v1/checkouts", bytes.NewReader(body), &checkout); err != nil {
		return nil, fmt.Errorf("create creem checkout: %w", err)
	}
	if checkout.ID == "" || checkout.CheckoutURL == "" {
		return nil, fmt.Errorf("invalid creem response (missing id or checkout url)")
	}

	record := &models.PaymentTransaction{
		UserID:      userID,
		PlanID:      string(offer.ID),
		Provider:    creemProvider,
		CheckoutID:  checkout.ID,
		RequestID:   requestID,
		AmountMinor: checkout.Product.Price,
		Currency:    checkout.Product.Currency,
		Points:      offer.Points,
		Status:      models.PaymentPending,
		RawPayload:  string(jsonMustMarshal(checkout)),
	}
	if err := s.payments.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	s.log.InfoContext(ctx, "checkout created", "user", userID, "plan", offer.ID, "checkout", checkout.ID)
	return &Checkout{CheckoutID: checkout.ID, CheckoutURL: checkout.CheckoutURL}, nil
}

// Verify asks Creem for the checkout status and completes it when paid.
func (s *PaymentService) Verify(ctx context.Context, userID, checkoutID string) (*PaymentState, error) {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return nil, fmt.Errorf("%w: checkout_id required", ErrInvalidInput)
	}
	record, err := s.payments.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if record == nil || record.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	if record.Status != models.PaymentPending {
		return stateOf(record, false), nil
	}
	if s.cfg.APIKey == "" {
		return nil, ErrPaymentsDisabled
	}

	var checkout creemCheckout
	path := "/v1/checkouts?checkout_id=" + url.QueryEscape(checkoutID)
	if err := s.do(ctx, http.MethodGet, path, nil, &checkout); err != nil {
		return nil, fmt.Errorf("fetch creem checkout: %w", err)
	}
	if strings.EqualFold(checkout.Status, creemStatusExpired) {
		if err := s.payments.UpdateStatus(ctx, checkoutID, models.PaymentFailed, string(jsonMustMarshal(checkout))); err != nil {
			return nil, fmt.Errorf("mark payment failed: %w", err)
		}
		record.Status = models.PaymentFailed
		return stateOf(record, false), nil
	}
	if !isPaid(checkout) {
		return stateOf(record, false), nil
	}

	completed, credited, err := s.complete(ctx, checkoutID, string(jsonMustMarshal(checkout)))
	if err != nil {
		return nil, err
	}
	return stateOf(completed, credited), nil
}

// Cancel marks the caller's own pending checkout as canceled.
func (s *PaymentService) Cancel(ctx context.Context, userID, checkoutID string) error {
	if strings.TrimSpace(checkoutID) == "" {
		return fmt.Errorf("%w: checkoutId required", ErrInvalidInput)
	}
	ok, err := s.payments.Cancel(ctx, checkoutID, userID)
	if err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	if !ok {
		return ErrPaymentNotFound
	}
	return nil
}

type creemEvent struct {
	ID        string        `json:"id"`
	EventType string        `json:"eventType"`
	Object    creemCheckout `json:"object"`
}

// HandleWebhook verifies the signature over the raw body before anything
// else and then applies checkout.completed events idempotently.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.validSignature(payload, signature) {
		s.metrics.WebhookEvent("unknown", "invalid_signature")
		return ErrInvalidSignature
	}

	var evt creemEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		s.metrics.WebhookEvent("unknown", "malformed")
		return fmt.Errorf("%w: parse webhook: %v", ErrInvalidInput, err)
	}
	if evt.EventType == "" {
		s.metrics.WebhookEvent("unknown", "malformed")
		return fmt.Errorf("%w: webhook missing eventType", ErrInvalidInput)
	}
	if evt.EventType != creemEventCompleted {
		s.log.InfoContext(ctx, "creem event ignored", "event", evt.EventType, "id", evt.ID)
		s.metrics.WebhookEvent(evt.EventType, "ignored")
		return nil
	}
	if evt.Object.ID == "" {
		s.metrics.WebhookEvent(evt.EventType, "malformed")
		return fmt.Errorf("%w: webhook missing checkout id", ErrInvalidInput)
	}

	_, credited, err := s.complete(ctx, evt.Object.ID, string(payload))
	if err != nil {
		s.metrics.WebhookEvent(evt.EventType, "error")
		return err
	}
	if credited {
		s.metrics.WebhookEvent(evt.EventType, "credited")
	} else {
		s.metrics.WebhookEvent(evt.EventType, "duplicate")
	}
	return nil
}

func (s *PaymentService) complete(ctx context.Context, checkoutID, payload string) (*models.PaymentTransaction, bool, error) {
	payment, credited, err := s.payments.Complete(ctx, checkoutID, payload)
	if err != nil {
		return nil, false, fmt.Errorf("complete payment: %w", err)
	}
	if payment == nil {
		return nil, false, ErrPaymentNotFound
	}
	if credited {
		s.log.InfoContext(ctx, "payment completed", "user", payment.UserID, "plan", payment.PlanID, "points", payment.Points, "checkout", checkoutID)
		s.notifier.Notify(ctx, fmt.Sprintf("payment completed\nuser: %s\nplan: %s\npoints: %d", payment.UserID, payment.PlanID, payment.Points))
	}
	return payment, credited, nil
}

func (s *PaymentService) validSignature(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if s.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), given)
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PaymentService) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isPaid(c creemCheckout) bool {
	if strings.EqualFold(c.Status, creemStatusCompleted) {
		return true
	}
	return c.Order != nil && strings.EqualFold(c.Order.Status, creemStatusPaid)
}

func stateOf(p *models.PaymentTransaction, credited bool) *PaymentState {
	return &PaymentState{
		CheckoutID: p.CheckoutID,
		Status:     p.Status,
		PlanID:     p.PlanID,
		Points:     p.Points,
		Credited:   credited,
	}
}

func jsonMustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
