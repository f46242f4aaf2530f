package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/digkill/CatPortrait/internal/models"
)

type PointsService struct {
	accounts      AccountStore
	defaultPoints int
}

func NewPointsService(accounts AccountStore, defaultPoints int) *PointsService {
	return &PointsService{accounts: accounts, defaultPoints: defaultPoints}
}

// Balance returns the user's points, creating the account on first use.
func (s *PointsService) Balance(ctx context.Context, userID string) (int, error) {
	account, _, err := s.accounts.Ensure(ctx, userID, s.defaultPoints)
	if err != nil {
		return 0, fmt.Errorf("ensure account: %w", err)
	}
	return account.Balance, nil
}

// Adjust applies a manual EARN or SPEND and returns the new balance.
func (s *PointsService) Adjust(ctx context.Context, userID string, amount int, kind models.TransactionType, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if kind != models.TransactionEarn && kind != models.TransactionSpend {
		return 0, fmt.Errorf("%w: type must be EARN or SPEND", ErrInvalidInput)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual " + strings.ToLower(string(kind))
	}
	if _, err := s.Balance(ctx, userID); err != nil {
		return 0, err
	}

	if kind == models.TransactionEarn {
		return s.accounts.Credit(ctx, userID, amount, reason)
	}
	return s.accounts.Debit(ctx, userID, amount, reason)
}

func (s *PointsService) History(ctx context.Context, userID string, limit int) ([]models.PointTransaction, error) {
	txs, err := s.accounts.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []models.PointTransaction{}
	}
	return txs, nil
}
