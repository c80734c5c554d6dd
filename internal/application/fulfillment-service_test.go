package application

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
	"github.com/RaikyD/esim-fulfillment-service/internal/email"
	"github.com/RaikyD/esim-fulfillment-service/internal/firoam"
	"github.com/RaikyD/esim-fulfillment-service/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

type memRepo struct {
	mu         sync.Mutex
	deliveries map[string]*domain.Delivery
	attempts   []*domain.VendorOrderAttempt
	mappings   map[string]*domain.SkuMapping
}

func newMemRepo() *memRepo {
	return &memRepo{
		deliveries: map[string]*domain.Delivery{},
		mappings:   map[string]*domain.SkuMapping{},
	}
}

func (r *memRepo) seed(d *domain.Delivery) *domain.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.deliveries[d.OrderID+":"+d.LineItemID] = d
	return d
}

func (r *memRepo) FindDelivery(_ context.Context, orderID, lineItemID string) (*domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deliveries[orderID+":"+lineItemID]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) CreateDelivery(_ context.Context, d *domain.Delivery) error {
	r.seed(d)
	return nil
}

func (r *memRepo) byID(id uuid.UUID) *domain.Delivery {
	for _, d := range r.deliveries {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (r *memRepo) MarkProvisioning(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.byID(id); d != nil {
		d.Status = domain.DeliveryProvisioning
	}
	return nil
}

func (r *memRepo) MarkDelivered(_ context.Context, id uuid.UUID, ref, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.byID(id); d != nil {
		d.Status = domain.DeliveryDelivered
		d.VendorReferenceID = ref
		d.PayloadEncrypted = payload
		d.LastError = ""
	}
	return nil
}

func (r *memRepo) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.byID(id); d != nil {
		d.Status = domain.DeliveryFailed
		d.LastError = lastError
	}
	return nil
}

func (r *memRepo) CreateVendorOrderAttempt(_ context.Context, a *domain.VendorOrderAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	r.attempts = append(r.attempts, &cp)
	return nil
}

func (r *memRepo) GetSkuMapping(_ context.Context, sku string) (*domain.SkuMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mappings[sku], nil
}

type fakeVendor struct {
	res   *firoam.OrderResult
	err   error
	calls int
}

func (f *fakeVendor) PlaceOrder(_ context.Context, _ domain.OrderPayload) (*firoam.OrderResult, error) {
	f.calls++
	return f.res, f.err
}

type b64Enc struct{}

func (b64Enc) Encrypt(plain []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(plain), nil
}

type recordSender struct {
	sent []email.DeliveryEmail
}

func (s *recordSender) SendDeliveryEmail(_ context.Context, e email.DeliveryEmail) (email.SendResult, error) {
	s.sent = append(s.sent, e)
	return email.SendResult{Success: true, MessageID: "m-1"}, nil
}

func pendingDelivery(repo *memRepo) *domain.Delivery {
	return repo.seed(&domain.Delivery{
		OrderID:       "1001",
		LineItemID:    "11",
		Status:        domain.DeliveryPending,
		CustomerEmail: "buyer@example.com",
		Shop:          "demo-store.example.com",
	})
}

func testJob(d *domain.Delivery) domain.Job {
	return domain.Job{
		DeliveryID:    d.ID,
		OrderID:       d.OrderID,
		LineItemID:    d.LineItemID,
		CustomerEmail: d.CustomerEmail,
		Shop:          d.Shop,
		ProductName:   "EU 10GB",
		OrderPayload:  domain.OrderPayload{Sku: "EU-10GB", Count: 1},
	}
}

func TestProcessJobDelivered(t *testing.T) {
	repo := newMemRepo()
	d := pendingDelivery(repo)
	vendor := &fakeVendor{res: &firoam.OrderResult{
		Success:           true,
		VendorReferenceID: "R100",
		Canonical: &domain.CanonicalEsimPayload{
			VendorID: "R100", LPA: "LPA:1$sm$A", ICCID: "8986001",
		},
	}}
	sender := &recordSender{}
	svc := NewFulfillmentService(repo, vendor, b64Enc{}, sender, nil)

	err := svc.ProcessJob(context.Background(), testJob(d))
	require.NoError(t, err)

	got := repo.byID(d.ID)
	assert.Equal(t, domain.DeliveryDelivered, got.Status)
	assert.Equal(t, "R100", got.VendorReferenceID)
	assert.NotEmpty(t, got.PayloadEncrypted)
	assert.Empty(t, got.LastError)

	// payload_encrypted непуст ⇔ delivered; письмо ровно одно
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "buyer@example.com", sender.sent[0].To)
	assert.Equal(t, "LPA:1$sm$A", sender.sent[0].LPA)

	raw, err := base64.StdEncoding.DecodeString(got.PayloadEncrypted)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "LPA:1$sm$A")
}

func TestProcessJobAlreadyDeliveredNoOp(t *testing.T) {
	repo := newMemRepo()
	d := repo.seed(&domain.Delivery{
		OrderID: "1001", LineItemID: "11",
		Status: domain.DeliveryDelivered, VendorReferenceID: "R1",
		CustomerEmail: "buyer@example.com",
	})
	vendor := &fakeVendor{}
	sender := &recordSender{}
	svc := NewFulfillmentService(repo, vendor, b64Enc{}, sender, nil)

	err := svc.ProcessJob(context.Background(), testJob(d))
	require.NoError(t, err)
	assert.Zero(t, vendor.calls, "must not re-order at the vendor")
	assert.Empty(t, sender.sent, "must not re-send the email")
}

func TestProcessJobVendorRejection(t *testing.T) {
	repo := newMemRepo()
	d := pendingDelivery(repo)
	vendor := &fakeVendor{res: &firoam.OrderResult{
		Success: false, Code: firoam.Code("-1"), Message: "token expire",
	}}
	sender := &recordSender{}
	svc := NewFulfillmentService(repo, vendor, b64Enc{}, sender, nil)

	err := svc.ProcessJob(context.Background(), testJob(d))
	require.Error(t, err, "queue must retry")

	got := repo.byID(d.ID)
	assert.Equal(t, domain.DeliveryFailed, got.Status)
	assert.Contains(t, got.LastError, "token expire")
	assert.Empty(t, sender.sent)
}

func TestProcessJobNoCanonicalPayload(t *testing.T) {
	repo := newMemRepo()
	d := pendingDelivery(repo)
	vendor := &fakeVendor{res: &firoam.OrderResult{
		Success: true, VendorReferenceID: "R200", Canonical: nil,
	}}
	sender := &recordSender{}
	svc := NewFulfillmentService(repo, vendor, b64Enc{}, sender, nil)

	err := svc.ProcessJob(context.Background(), testJob(d))
	assert.ErrorIs(t, err, ErrNoCanonicalPayload)

	got := repo.byID(d.ID)
	assert.Equal(t, domain.DeliveryFailed, got.Status)
	assert.Contains(t, got.LastError, "no canonical payload")
	assert.Empty(t, got.PayloadEncrypted)
	assert.Empty(t, sender.sent)
}

func TestProcessJobTransportError(t *testing.T) {
	repo := newMemRepo()
	d := pendingDelivery(repo)
	vendorErr := errors.New("context deadline exceeded")
	vendor := &fakeVendor{err: vendorErr}
	svc := NewFulfillmentService(repo, vendor, b64Enc{}, nil, nil)

	err := svc.ProcessJob(context.Background(), testJob(d))
	assert.ErrorIs(t, err, vendorErr)

	got := repo.byID(d.ID)
	assert.Equal(t, domain.DeliveryFailed, got.Status)
	assert.Contains(t, got.LastError, "deadline")
}

func TestProcessJobUnknownDelivery(t *testing.T) {
	repo := newMemRepo()
	svc := NewFulfillmentService(repo, &fakeVendor{}, b64Enc{}, nil, nil)

	err := svc.ProcessJob(context.Background(), domain.Job{OrderID: "9", LineItemID: "9"})
	assert.Error(t, err)
}

// Повторная обработка после сбоя: первый заход failed, второй — delivered.
func TestProcessJobRetryAfterFailure(t *testing.T) {
	repo := newMemRepo()
	d := pendingDelivery(repo)
	vendor := &fakeVendor{res: &firoam.OrderResult{Success: false, Code: firoam.Code("500"), Message: "try later"}}
	sender := &recordSender{}
	svc := NewFulfillmentService(repo, vendor, b64Enc{}, sender, nil)

	require.Error(t, svc.ProcessJob(context.Background(), testJob(d)))
	assert.Equal(t, domain.DeliveryFailed, repo.byID(d.ID).Status)

	vendor.res = &firoam.OrderResult{
		Success:           true,
		VendorReferenceID: "R300",
		Canonical:         &domain.CanonicalEsimPayload{VendorID: "R300", ActivationCode: "AC-1"},
	}
	require.NoError(t, svc.ProcessJob(context.Background(), testJob(d)))

	got := repo.byID(d.ID)
	assert.Equal(t, domain.DeliveryDelivered, got.Status)
	assert.Empty(t, got.LastError, "last_error очищается при успехе")
	require.Len(t, sender.sent, 1)
}
