package service

import (
	"context"
	"time"

	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/ratelimit"
	"github.com/digkill/CatPortrait/internal/storage"
)

// The interfaces below are satisfied by the MySQL repositories, the Redis
// limiter and the S3 uploader.

type AccountStore interface {
	Ensure(ctx context.Context, userID string, defaultPoints int) (*models.Account, bool, error)
	Debit(ctx context.Context, userID string, amount int, reason string) (int, error)
	Credit(ctx context.Context, userID string, amount int, reason string) (int, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.PointTransaction, error)
}

type PaymentStore interface {
	Create(ctx context.Context, payment *models.PaymentTransaction) error
	FindByCheckoutID(ctx context.Context, checkoutID string) (*models.PaymentTransaction, error)
	LatestCompleted(ctx context.Context, userID string) (*models.PaymentTransaction, error)
	Cancel(ctx context.Context, checkoutID, userID string) (bool, error)
	UpdateStatus(ctx context.Context, checkoutID string, status models.PaymentStatus, payload string) error
	Complete(ctx context.Context, checkoutID string, payload string) (*models.PaymentTransaction, bool, error)
}

type GuestStore interface {
	Log(ctx context.Context, guestKey, apiUsed, prompt string) error
	CountSince(ctx context.Context, guestKey string, since time.Time) (int, error)
}

type ImageStore interface {
	Create(ctx context.Context, img *models.Image) (*models.Image, error)
	GetByID(ctx context.Context, id string) (*models.Image, error)
	List(ctx context.Context, userID string, limit, offset int) ([]models.Image, int, error)
	SetVisibility(ctx context.Context, id, userID string, public bool) (bool, error)
	RecordEvent(ctx context.Context, imageID, userID string, action models.ImageAction, value int) error
	Stats(ctx context.Context, imageID string) (*models.ImageStats, error)
}

type GuestQuota interface {
	Reserve(ctx context.Context, guestKey string) (*ratelimit.Reservation, bool, error)
	Release(ctx context.Context, r *ratelimit.Reservation) error
}

type ObjectUploader interface {
	Upload(ctx context.Context, owner string, data []byte, contentType string) (*storage.Object, error)
}
