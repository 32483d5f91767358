package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"payrequest_back/models"
)

type WebhookPostgres struct {
	db *sqlx.DB
}

func NewWebhookPostgres(db *sqlx.DB) *WebhookPostgres {
	return &WebhookPostgres{db: db}
}

func (r *WebhookPostgres) ActiveByEvent(ctx context.Context, event string) ([]models.WebhookSubscription, error) {
	var subs []models.WebhookSubscription
	query := `SELECT id, event, url, secret, active
              FROM webhook_subscriptions WHERE event = $1 AND active = true`
	err := r.db.SelectContext(ctx, &subs, query, event)
	return subs, errors.Wrap(err, "list webhook subscriptions")
}
