package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
	"github.com/RaikyD/esim-fulfillment-service/internal/email"
	"github.com/RaikyD/esim-fulfillment-service/internal/firoam"
	"github.com/RaikyD/esim-fulfillment-service/internal/logger"
	"github.com/RaikyD/esim-fulfillment-service/internal/metrics"
	"github.com/RaikyD/esim-fulfillment-service/internal/repository"
)

var ErrNoCanonicalPayload = errors.New("vendor order placed but no canonical payload")

// VendorClient — то, что сервису нужно от клиента вендора.
type VendorClient interface {
	PlaceOrder(ctx context.Context, p domain.OrderPayload) (*firoam.OrderResult, error)
}

type JobEnqueuer interface {
	PublishJob(ctx context.Context, j domain.Job) error
}

type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

type FulfillmentService struct {
	repo   repository.DeliveryRepo
	vendor VendorClient
	enc    Encrypter
	email  email.Sender
	jobs   JobEnqueuer
}

func NewFulfillmentService(
	repo repository.DeliveryRepo,
	vendor VendorClient,
	enc Encrypter,
	sender email.Sender,
	jobs JobEnqueuer,
) *FulfillmentService {
	return &FulfillmentService{repo: repo, vendor: vendor, enc: enc, email: sender, jobs: jobs}
}

// IngestOrderPaid — путь шлюза: на каждую позицию заказа одна Delivery и
// одна задача в очереди. Проверка существующей Delivery — единственный
// механизм дедупликации, платформа может прислать вебхук повторно.
// Ошибка по одной позиции не роняет остальные: каждая позиция
// обрабатывается до конца, наружу уходит первая ошибка.
func (s *FulfillmentService) IngestOrderPaid(ctx context.Context, shop string, n *domain.OrderPaidNotification) error {
	orderID := strconv.FormatInt(n.ID, 10)

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, li := range n.LineItems {
		lineItemID := strconv.FormatInt(li.ID, 10)

		existing, err := s.repo.FindDelivery(ctx, orderID, lineItemID)
		if err != nil {
			keep(err)
			continue
		}
		if existing != nil {
			if existing.Status == domain.DeliveryFailed {
				// У failed задачи в очереди может и не быть (очередь упала
				// после вставки, или sku mapping появился позже). Повторная
				// доставка вебхука — легальный способ дослать задачу;
				// pending не трогаем, его задача уже опубликована.
				if err := s.enqueueLineItem(ctx, existing, &li, "requeued"); err != nil {
					keep(err)
				}
				continue
			}
			metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
			logger.Info("delivery exists, skip", "order_id", orderID, "line_item_id", lineItemID)
			continue
		}

		d := &domain.Delivery{
			OrderID:       orderID,
			LineItemID:    lineItemID,
			VariantID:     strconv.FormatInt(li.VariantID, 10),
			Status:        domain.DeliveryPending,
			CustomerEmail: n.Email,
			Shop:          shop,
		}
		if err := s.repo.CreateDelivery(ctx, d); err != nil {
			if errors.Is(err, repository.ErrDeliveryExists) {
				// два одинаковых вебхука успели наперегонки — решает
				// уникальный индекс, не блокировки в приложении
				metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
				continue
			}
			keep(err)
			continue
		}

		if err := s.enqueueLineItem(ctx, d, &li, "enqueued"); err != nil {
			keep(err)
		}
	}
	return firstErr
}

// enqueueLineItem собирает задачу по sku mapping и публикует её в очередь.
// Если публикация не удалась, Delivery переводится в failed: pending без
// задачи в очереди не доставит никто, а failed подберёт следующий повтор
// вебхука.
func (s *FulfillmentService) enqueueLineItem(ctx context.Context, d *domain.Delivery, li *domain.LineItemData, outcome string) error {
	mapping, err := s.repo.GetSkuMapping(ctx, li.Sku)
	if err != nil {
		return err
	}
	if mapping == nil {
		_ = s.repo.MarkFailed(ctx, d.ID, "no sku mapping for "+li.Sku)
		metrics.WebhookEvents.WithLabelValues("no_mapping").Inc()
		logger.Warn("no sku mapping", "sku", li.Sku, "order_id", d.OrderID)
		return nil
	}

	count := li.Quantity
	if count <= 0 {
		count = 1
	}
	job := domain.Job{
		DeliveryID:    d.ID,
		OrderID:       d.OrderID,
		LineItemID:    d.LineItemID,
		VariantID:     d.VariantID,
		Shop:          d.Shop,
		CustomerEmail: d.CustomerEmail,
		ProductName:   li.Title,
		OrderPayload: domain.OrderPayload{
			Sku:         mapping.ProviderSku,
			PackageType: mapping.PackageType,
			Count:       count,
			Days:        mapping.DaysCount,
		},
	}
	if err := s.jobs.PublishJob(ctx, job); err != nil {
		_ = s.repo.MarkFailed(ctx, d.ID, "enqueue failed: "+err.Error())
		metrics.WebhookEvents.WithLabelValues("enqueue_failed").Inc()
		return err
	}
	metrics.WebhookEvents.WithLabelValues(outcome).Inc()
	return nil
}

// ProcessJob — путь воркера. Ошибка наружу означает «очередь, реши сама»:
// бизнес-отказы и невалидные payload уже записаны в Delivery как failed.
func (s *FulfillmentService) ProcessJob(ctx context.Context, job domain.Job) error {
	start := time.Now()
	defer func() {
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	d, err := s.repo.FindDelivery(ctx, job.OrderID, job.LineItemID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("delivery not found for %s:%s", job.OrderID, job.LineItemID)
	}
	if d.Status == domain.DeliveryDelivered {
		// защита в глубину: вебхук уже отфильтровал дубликаты, но очередь
		// at-least-once
		logger.Info("already delivered, skip", "order_id", d.OrderID, "line_item_id", d.LineItemID)
		return nil
	}

	if err := s.repo.MarkProvisioning(ctx, d.ID); err != nil {
		return err
	}

	res, err := s.vendor.PlaceOrder(ctx, job.OrderPayload)
	if err != nil {
		_ = s.repo.MarkFailed(ctx, d.ID, err.Error())
		return err
	}
	if !res.Success {
		msg := fmt.Sprintf("vendor rejected order: code=%s %s", res.Code, res.Message)
		_ = s.repo.MarkFailed(ctx, d.ID, msg)
		return errors.New(msg)
	}
	if res.Canonical == nil {
		_ = s.repo.MarkFailed(ctx, d.ID, "vendor order "+res.VendorReferenceID+": no canonical payload")
		return ErrNoCanonicalPayload
	}

	serialized, err := json.Marshal(res.Canonical)
	if err != nil {
		return err
	}
	sealed, err := s.enc.Encrypt(serialized)
	if err != nil {
		_ = s.repo.MarkFailed(ctx, d.ID, err.Error())
		return err
	}

	if err := s.repo.MarkDelivered(ctx, d.ID, res.VendorReferenceID, sealed); err != nil {
		return err
	}
	logger.Info("delivery fulfilled",
		"order_id", d.OrderID, "line_item_id", d.LineItemID, "vendor_ref", res.VendorReferenceID)

	s.notifyCustomer(ctx, d, &job, res.Canonical)
	return nil
}

// Письмо уходит один раз, на переходе в delivered. Отказ почты не откатывает
// доставку — только лог.
func (s *FulfillmentService) notifyCustomer(ctx context.Context, d *domain.Delivery, job *domain.Job, p *domain.CanonicalEsimPayload) {
	if s.email == nil || d.CustomerEmail == "" {
		return
	}
	msg := email.DeliveryEmail{
		To:             d.CustomerEmail,
		OrderNumber:    d.OrderID,
		LPA:            p.LPA,
		ActivationCode: p.ActivationCode,
		ICCID:          p.ICCID,
		ProductName:    job.ProductName,
	}
	if _, err := s.email.SendDeliveryEmail(ctx, msg); err != nil {
		logger.Warn("delivery email failed", "order_id", d.OrderID, "err", err)
	}
}

func (s *FulfillmentService) GetDelivery(ctx context.Context, orderID, lineItemID string) (*domain.Delivery, error) {
	return s.repo.FindDelivery(ctx, orderID, lineItemID)
}
