package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/prompt"
	"github.com/digkill/CatPortrait/internal/provider"
	"github.com/digkill/CatPortrait/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPrompt() prompt.StructuredPrompt {
	return prompt.StructuredPrompt{
		Breed:       "Maine Coon",
		Style:       "watercolor",
		Pose:        "sitting proudly",
		Expression:  "curious",
		Personality: "regal",
	}
}

// fakeAccounts is an in-memory ledger with the same conditional-debit
// semantics as the MySQL repository.
type fakeAccounts struct {
	mu        sync.Mutex
	balances  map[string]int
	txs       map[string][]models.PointTransaction
	ensureErr error
	debitErr  error
	debits    int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{balances: map[string]int{}, txs: map[string][]models.PointTransaction{}}
}

func (f *fakeAccounts) set(userID string, balance int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = balance
	f.txs[userID] = append(f.txs[userID], models.PointTransaction{UserID: userID, Amount: balance, Type: models.TransactionEarn, Reason: "seed"})
}

func (f *fakeAccounts) balance(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeAccounts) ledgerSum(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, t := range f.txs[userID] {
		sum += t.Amount
	}
	return sum
}

func (f *fakeAccounts) Ensure(ctx context.Context, userID string, defaultPoints int) (*models.Account, bool, error) {
	if f.ensureErr != nil {
		return nil, false, f.ensureErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		f.balances[userID] = defaultPoints
		f.txs[userID] = append(f.txs[userID], models.PointTransaction{UserID: userID, Amount: defaultPoints, Type: models.TransactionEarn, Reason: "signup grant"})
		return &models.Account{UserID: userID, Balance: defaultPoints}, true, nil
	}
	return &models.Account{UserID: userID, Balance: balance}, false, nil
}

func (f *fakeAccounts) Debit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if f.debitErr != nil {
		return 0, f.debitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debits++
	if f.balances[userID] < amount {
		return 0, ErrInsufficientBalance
	}
	f.balances[userID] -= amount
	f.txs[userID] = append(f.txs[userID], models.PointTransaction{UserID: userID, Amount: -amount, Type: models.TransactionSpend, Reason: reason})
	return f.balances[userID], nil
}

func (f *fakeAccounts) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] += amount
	f.txs[userID] = append(f.txs[userID], models.PointTransaction{UserID: userID, Amount: amount, Type: models.TransactionEarn, Reason: reason})
	return f.balances[userID], nil
}

func (f *fakeAccounts) ListTransactions(ctx context.Context, userID string, limit int) ([]models.PointTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txs := append([]models.PointTransaction(nil), f.txs[userID]...)
	if len(txs) > limit && limit > 0 {
		txs = txs[len(txs)-limit:]
	}
	return txs, nil
}

func (f *fakeAccounts) lastReason(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	txs := f.txs[userID]
	if len(txs) == 0 {
		return ""
	}
	return txs[len(txs)-1].Reason
}

type fakePayments struct {
	mu        sync.Mutex
	byID      map[string]*models.PaymentTransaction
	accounts  *fakeAccounts
	latestErr error
	lookups   int
}

func newFakePayments(accounts *fakeAccounts) *fakePayments {
	return &fakePayments{byID: map[string]*models.PaymentTransaction{}, accounts: accounts}
}

func (f *fakePayments) Create(ctx context.Context, p *models.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	cp.ID = int64(len(f.byID) + 1)
	cp.CreatedAt = time.Now()
	f.byID[p.CheckoutID] = &cp
	return nil
}

func (f *fakePayments) FindByCheckoutID(ctx context.Context, checkoutID string) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[checkoutID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) LatestCompleted(ctx context.Context, userID string) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	var completed []*models.PaymentTransaction
	for _, p := range f.byID {
		if p.UserID == userID && p.Status == models.PaymentCompleted && p.CompletedAt != nil {
			completed = append(completed, p)
		}
	}
	if len(completed) == 0 {
		return nil, nil
	}
	sort.Slice(completed, func(i, j int) bool {
		if !completed[i].CompletedAt.Equal(*completed[j].CompletedAt) {
			return completed[i].CompletedAt.After(*completed[j].CompletedAt)
		}
		return completed[i].ID > completed[j].ID
	})
	cp := *completed[0]
	return &cp, nil
}

func (f *fakePayments) Cancel(ctx context.Context, checkoutID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[checkoutID]
	if !ok || p.UserID != userID || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentCanceled
	return true, nil
}

func (f *fakePayments) UpdateStatus(ctx context.Context, checkoutID string, status models.PaymentStatus, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[checkoutID]; ok && p.Status != models.PaymentCompleted {
		p.Status = status
		p.RawPayload = payload
	}
	return nil
}

func (f *fakePayments) Complete(ctx context.Context, checkoutID string, payload string) (*models.PaymentTransaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[checkoutID]
	if !ok {
		return nil, false, nil
	}
	if p.Status == models.PaymentCompleted {
		cp := *p
		return &cp, false, nil
	}
	now := time.Now()
	p.Status = models.PaymentCompleted
	p.CompletedAt = &now
	p.RawPayload = payload
	if f.accounts != nil && p.Points > 0 {
		_, _ = f.accounts.Credit(ctx, p.UserID, p.Points, "purchase "+p.PlanID+" plan")
	}
	cp := *p
	return &cp, true, nil
}

func (f *fakePayments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *fakePayments) addCompleted(userID, planID, checkoutID string, completedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[checkoutID] = &models.PaymentTransaction{
		ID:          int64(len(f.byID) + 1),
		UserID:      userID,
		PlanID:      planID,
		CheckoutID:  checkoutID,
		Status:      models.PaymentCompleted,
		CompletedAt: &completedAt,
	}
}

type fakeGuests struct {
	mu      sync.Mutex
	logged  []string
	count   int
	logErr  error
	countErr error
}

func (f *fakeGuests) Log(ctx context.Context, guestKey, apiUsed, prompt string) error {
	if f.logErr != nil {
		return f.logErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, guestKey+"|"+apiUsed)
	return nil
}

func (f *fakeGuests) CountSince(ctx context.Context, guestKey string, since time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

type fakeQuota struct {
	mu       sync.Mutex
	limit    int
	used     map[string]int
	err      error
	released int
}

func newFakeQuota(limit int) *fakeQuota {
	return &fakeQuota{limit: limit, used: map[string]int{}}
}

func (f *fakeQuota) Reserve(ctx context.Context, guestKey string) (*ratelimit.Reservation, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used[guestKey] >= f.limit {
		return nil, false, nil
	}
	f.used[guestKey]++
	return &ratelimit.Reservation{}, true, nil
}

func (f *fakeQuota) Release(ctx context.Context, r *ratelimit.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

// fakeProvider returns a fixed outcome and counts invocations.
type fakeProvider struct {
	name     string
	err      error
	availErr error
	image    provider.Image
	mu       sync.Mutex
	calls    int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Available(ctx context.Context) error { return p.availErr }

func (p *fakeProvider) Generate(ctx context.Context, sp prompt.StructuredPrompt) (*provider.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	img := p.image
	if img.Empty() {
		img = provider.Image{URL: "https://img.example.com/" + p.name + ".png"}
	}
	return &provider.Result{Image: img, RenderedPrompt: prompt.Render(sp)}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func okProvider(name string) *fakeProvider {
	return &fakeProvider{name: name}
}

func failingProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, err: &provider.Error{Provider: name, Kind: provider.KindRetryable, StatusCode: 503, Msg: "api error"}}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

var errDatastore = errors.New("datastore unavailable")

var testTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
