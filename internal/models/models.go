package models

import "time"

type PlanType string

const (
	PlanFree     PlanType = "free"
	PlanStandard PlanType = "standard"
	PlanSuper    PlanType = "super"
)

type TransactionType string

const (
	TransactionEarn  TransactionType = "EARN"
	TransactionSpend TransactionType = "SPEND"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentFailed    PaymentStatus = "failed"
)

type ImageAction string

const (
	ImageActionDownload ImageAction = "download"
	ImageActionShare    ImageAction = "share"
	ImageActionRating   ImageAction = "rating"
)

type Account struct {
	UserID    string    `json:"userId"`
	Balance   int       `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PointTransaction struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"userId"`
	Amount    int             `json:"amount"`
	Type      TransactionType `json:"type"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"createdAt"`
}

type PaymentTransaction struct {
	ID          int64         `json:"id"`
	UserID      string        `json:"userId"`
	PlanID      string        `json:"planId"`
	Provider    string        `json:"provider"`
	CheckoutID  string        `json:"checkoutId"`
	RequestID   string        `json:"requestId"`
	AmountMinor int           `json:"amountMinor"`
	Currency    string        `json:"currency"`
	Points      int           `json:"points"`
	Status      PaymentStatus `json:"status"`
	RawPayload  string        `json:"-"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

type Image struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ImageURL   string    `json:"imageUrl"`
	StorageKey string    `json:"-"`
	Prompt     string    `json:"prompt"`
	APIUsed    string    `json:"apiUsed"`
	IsPublic   bool      `json:"isPublic"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ImageStats struct {
	ImageID       string  `json:"imageId"`
	Downloads     int     `json:"downloads"`
	Shares        int     `json:"shares"`
	Ratings       int     `json:"ratings"`
	AverageRating float64 `json:"averageRating"`
}
