package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"payrequest_back/models"
	"payrequest_back/pkg/apperr"
)

// MemoryStore implements PaymentRequests on a mutex-protected map.
// Suitable for single-process deployments and tests; the mutex makes
// MarkPaid/Transition the same compare-and-swap the guarded UPDATE
// provides on Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]models.PaymentRequest
	byTxHash map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]models.PaymentRequest),
		byTxHash: make(map[string]string),
	}
}

// NewMemoryRepository bundles in-memory stores behind the Repository
// interfaces.
func NewMemoryRepository() (*Repository, *MemoryStore, *MemoryWebhookStore) {
	requests := NewMemoryStore()
	webhooks := &MemoryWebhookStore{}
	return &Repository{
		PaymentRequests: requests,
		FeeTransactions: &MemoryFeeStore{fees: make(map[string][]models.FeeTransactionRecord)},
		Webhooks:        webhooks,
	}, requests, webhooks
}

func (s *MemoryStore) Create(_ context.Context, req *models.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return apperr.New(apperr.CodeValidation, "duplicate payment request id")
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (models.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return models.PaymentRequest{}, apperr.New(apperr.CodeNotFound, "payment request not found")
	}
	return req, nil
}

func (s *MemoryStore) GetByTxHash(_ context.Context, txHash string) (models.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byTxHash[txHash]
	if !ok {
		return models.PaymentRequest{}, apperr.New(apperr.CodeNotFound, "no payment request with this tx hash")
	}
	return s.requests[id], nil
}

func (s *MemoryStore) ListByCreator(_ context.Context, creatorIdentity string) ([]models.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reqs []models.PaymentRequest
	for _, req := range s.requests {
		if req.CreatorIdentity == creatorIdentity {
			reqs = append(reqs, req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

func (s *MemoryStore) MarkPaid(_ context.Context, id, txHash, payerIdentity string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok || req.Status != models.StatusPending {
		return false, nil
	}
	if _, taken := s.byTxHash[txHash]; taken {
		return false, apperr.New(apperr.CodeDuplicateTxHash,
			"tx hash already recorded on another payment request")
	}

	req.Status = models.StatusPaid
	req.TxHash = &txHash
	req.PaidAt = &paidAt
	req.PayerIdentity = &payerIdentity
	s.requests[id] = req
	s.byTxHash[txHash] = id
	return true, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to models.PaymentRequestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	s.requests[id] = req
	return true, nil
}

type MemoryFeeStore struct {
	mu   sync.Mutex
	fees map[string][]models.FeeTransactionRecord
}

func (s *MemoryFeeStore) Create(_ context.Context, record *models.FeeTransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fees[record.PaymentRequestID] = append(s.fees[record.PaymentRequestID], *record)
	return nil
}

func (s *MemoryFeeStore) GetByPaymentRequest(_ context.Context, paymentRequestID string) ([]models.FeeTransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.FeeTransactionRecord(nil), s.fees[paymentRequestID]...), nil
}

type MemoryWebhookStore struct {
	mu   sync.Mutex
	subs []models.WebhookSubscription
}

func (s *MemoryWebhookStore) ActiveByEvent(_ context.Context, event string) ([]models.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []models.WebhookSubscription
	for _, sub := range s.subs {
		if sub.Active && sub.Event == event {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// AddSubscription seeds a webhook subscription; registration CRUD is
// otherwise external to this service.
func (s *MemoryWebhookStore) AddSubscription(sub models.WebhookSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append(s.subs, sub)
}
