package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/CatPortrait/internal/models"
)

const webhookSecret = "whsec_test"

type paymentFixture struct {
	accounts *fakeAccounts
	payments *fakePayments
	notifier *recordingNotifier
	svc      *PaymentService
}

func newPaymentFixture(baseURL string) *paymentFixture {
	f := &paymentFixture{accounts: newFakeAccounts(), notifier: &recordingNotifier{}}
	f.payments = newFakePayments(f.accounts)
	plans := NewPlanService(f.payments, testOffers(), discardLogger())
	f.svc = NewPaymentService(CreemConfig{
		APIKey:        "creem_key",
		BaseURL:       baseURL,
		WebhookSecret: webhookSecret,
		SuccessURL:    "https://app.example.com/success",
	}, f.payments, plans, f.notifier, nil, discardLogger())
	return f
}

func (f *paymentFixture) seedPending(userID, checkoutID string, points int) {
	_ = f.payments.Create(context.Background(), &models.PaymentTransaction{
		UserID:     userID,
		PlanID:     "standard",
		Provider:   "creem",
		CheckoutID: checkoutID,
		Points:     points,
		Status:     models.PaymentPending,
	})
}

func completedEvent(checkoutID string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":        "evt_1",
		"eventType": "checkout.completed",
		"object":    map[string]any{"id": checkoutID, "status": "completed"},
	})
	return body
}

func TestCreateCheckout(t *testing.T) {
	var got creemCheckoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkouts", r.URL.Path)
		assert.Equal(t, "creem_key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"ch_123","status":"pending","checkout_url":"https://pay.creem.io/ch_123","product":{"id":"prod_std","price":499,"currency":"USD"}}`)
	}))
	defer srv.Close()

	f := newPaymentFixture(srv.URL)
	checkout, err := f.svc.CreateCheckout(context.Background(), "u", "standard")
	require.NoError(t, err)
	assert.Equal(t, &Checkout{CheckoutID: "ch_123", CheckoutURL: "https://pay.creem.io/ch_123"}, checkout)

	assert.Equal(t, "prod_std", got.ProductID)
	assert.Equal(t, "u", got.Metadata["userId"])
	assert.NotEmpty(t, got.RequestID)

	record, err := f.payments.FindByCheckoutID(context.Background(), "ch_123")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.PaymentPending, record.Status)
	assert.Equal(t, 50, record.Points)
	assert.Equal(t, 499, record.AmountMinor)
}

func TestCreateCheckout_UnknownPlan(t *testing.T) {
	f := newPaymentFixture("http://unused")
	_, err := f.svc.CreateCheckout(context.Background(), "u", "gold")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestCreateCheckout_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad product"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	f := newPaymentFixture(srv.URL)
	_, err := f.svc.CreateCheckout(context.Background(), "u", "super")
	assert.ErrorContains(t, err, "status 400")
	assert.Equal(t, 0, f.payments.count())
}

func TestWebhook_InvalidSignatureNoMutation(t *testing.T) {
	f := newPaymentFixture("http://unused")
	f.seedPending("u", "ch_1", 50)
	body := completedEvent("ch_1")

	for _, sig := range []string{"", "zz", Sign("wrong", body)} {
		err := f.svc.HandleWebhook(context.Background(), body, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}

	record, _ := f.payments.FindByCheckoutID(context.Background(), "ch_1")
	assert.Equal(t, models.PaymentPending, record.Status)
	assert.Equal(t, 0, f.accounts.balance("u"))
	assert.Equal(t, 1, f.payments.count())
}

func TestWebhook_CompletesOnce(t *testing.T) {
	f := newPaymentFixture("http://unused")
	f.accounts.set("u", 3)
	f.seedPending("u", "ch_1", 50)
	body := completedEvent("ch_1")

	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, Sign(webhookSecret, body)))
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, Sign(webhookSecret, body)))

	assert.Equal(t, 53, f.accounts.balance("u"))
	assert.Equal(t, 1, f.notifier.count())
	record, _ := f.payments.FindByCheckoutID(context.Background(), "ch_1")
	assert.Equal(t, models.PaymentCompleted, record.Status)
}

func TestWebhook_BadPayloads(t *testing.T) {
	f := newPaymentFixture("http://unused")

	missing := []byte(`{"eventType":"checkout.completed","object":{}}`)
	assert.ErrorIs(t, f.svc.HandleWebhook(context.Background(), missing, Sign(webhookSecret, missing)), ErrInvalidInput)

	garbage := []byte(`not json`)
	assert.ErrorIs(t, f.svc.HandleWebhook(context.Background(), garbage, Sign(webhookSecret, garbage)), ErrInvalidInput)

	unknown := completedEvent("ch_missing")
	assert.ErrorIs(t, f.svc.HandleWebhook(context.Background(), unknown, Sign(webhookSecret, unknown)), ErrPaymentNotFound)

	other := []byte(`{"eventType":"refund.created","object":{"id":"ch_1"}}`)
	assert.NoError(t, f.svc.HandleWebhook(context.Background(), other, Sign(webhookSecret, other)))
}

func TestVerify(t *testing.T) {
	status := "pending"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "ch_1", r.URL.Query().Get("checkout_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ch_1", "status": status})
	}))
	defer srv.Close()

	f := newPaymentFixture(srv.URL)
	f.seedPending("u", "ch_1", 50)

	state, err := f.svc.Verify(context.Background(), "u", "ch_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, state.Status)
	assert.False(t, state.Credited)

	status = "completed"
	state, err = f.svc.Verify(context.Background(), "u", "ch_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, state.Status)
	assert.True(t, state.Credited)
	assert.Equal(t, 50, f.accounts.balance("u"))

	state, err = f.svc.Verify(context.Background(), "u", "ch_1")
	require.NoError(t, err)
	assert.False(t, state.Credited)
	assert.Equal(t, 50, f.accounts.balance("u"))

	_, err = f.svc.Verify(context.Background(), "intruder", "ch_1")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = f.svc.Verify(context.Background(), "u", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestVerify_ExpiredCheckoutFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ch_2", "status": "expired"})
	}))
	defer srv.Close()

	f := newPaymentFixture(srv.URL)
	f.seedPending("u", "ch_2", 50)

	state, err := f.svc.Verify(context.Background(), "u", "ch_2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, state.Status)
	assert.Equal(t, 0, f.accounts.balance("u"))

	state, err = f.svc.Verify(context.Background(), "u", "ch_2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, state.Status)
	assert.Equal(t, 1, calls)
}

func TestCancel(t *testing.T) {
	f := newPaymentFixture("http://unused")
	f.seedPending("u", "ch_1", 50)

	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "other", "ch_1"), ErrPaymentNotFound)
	require.NoError(t, f.svc.Cancel(context.Background(), "u", "ch_1"))
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "u", "ch_1"), ErrPaymentNotFound)
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "u", ""), ErrInvalidInput)
}
