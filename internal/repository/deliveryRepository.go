package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
)

var (
	// ErrDeliveryExists — вторая вставка по тому же (order_id, line_item_id).
	// Уникальный индекс в БД закрывает гонку двух одинаковых вебхуков.
	ErrDeliveryExists = errors.New("delivery already exists")
)

type DeliveryRepo interface {
	FindDelivery(ctx context.Context, orderID, lineItemID string) (*domain.Delivery, error)
	CreateDelivery(ctx context.Context, d *domain.Delivery) error
	MarkProvisioning(ctx context.Context, id uuid.UUID) error
	MarkDelivered(ctx context.Context, id uuid.UUID, vendorReferenceID, payloadEncrypted string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	CreateVendorOrderAttempt(ctx context.Context, a *domain.VendorOrderAttempt) error
	GetSkuMapping(ctx context.Context, sku string) (*domain.SkuMapping, error)
}

type DeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryRepository(p *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: p}
}

const deliveryColumns = `id, order_id, line_item_id, variant_id, status,
	coalesce(vendor_reference_id, ''), coalesce(payload_encrypted, ''),
	coalesce(last_error, ''), customer_email, shop, created_at, updated_at`

func (r *DeliveryRepository) FindDelivery(ctx context.Context, orderID, lineItemID string) (*domain.Delivery, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+`
		   FROM deliveries
		  WHERE order_id = $1 AND line_item_id = $2`,
		orderID, lineItemID,
	)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID, &d.OrderID, &d.LineItemID, &d.VariantID, &d.Status,
		&d.VendorReferenceID, &d.PayloadEncrypted,
		&d.LastError, &d.CustomerEmail, &d.Shop, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeliveryRepository) CreateDelivery(ctx context.Context, d *domain.Delivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = domain.DeliveryPending
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO deliveries
			(id, order_id, line_item_id, variant_id, status, customer_email, shop)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		d.ID, d.OrderID, d.LineItemID, d.VariantID, d.Status, d.CustomerEmail, d.Shop,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDeliveryExists
		}
		return err
	}
	return nil
}

func (r *DeliveryRepository) MarkProvisioning(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE deliveries
		    SET status = $2, updated_at = now()
		  WHERE id = $1`,
		id, domain.DeliveryProvisioning,
	)
	return err
}

// MarkDelivered — единственный переход, который пишет payload_encrypted;
// last_error при этом очищается.
func (r *DeliveryRepository) MarkDelivered(ctx context.Context, id uuid.UUID, vendorReferenceID, payloadEncrypted string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE deliveries
		    SET status = $2, vendor_reference_id = $3, payload_encrypted = $4,
		        last_error = NULL, updated_at = now()
		  WHERE id = $1`,
		id, domain.DeliveryDelivered, vendorReferenceID, payloadEncrypted,
	)
	return err
}

func (r *DeliveryRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE deliveries
		    SET status = $2, last_error = $3, updated_at = now()
		  WHERE id = $1`,
		id, domain.DeliveryFailed, lastError,
	)
	return err
}

func (r *DeliveryRepository) CreateVendorOrderAttempt(ctx context.Context, a *domain.VendorOrderAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	// append-only: никаких апдейтов по этой таблице нигде нет
	return r.pool.QueryRow(ctx,
		`INSERT INTO vendor_order_attempts
			(id, vendor_reference_id, payload_json, payload_encrypted, status, last_error)
		 VALUES
			($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		a.ID, a.VendorReferenceID, a.PayloadJSON, a.PayloadEncrypted, a.Status, a.LastError,
	).Scan(&a.CreatedAt)
}

func (r *DeliveryRepository) GetSkuMapping(ctx context.Context, sku string) (*domain.SkuMapping, error) {
	var m domain.SkuMapping
	err := r.pool.QueryRow(ctx,
		`SELECT sku, provider, provider_sku, package_type, days_count
		   FROM sku_mappings
		  WHERE sku = $1`,
		sku,
	).Scan(&m.Sku, &m.Provider, &m.ProviderSku, &m.PackageType, &m.DaysCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
