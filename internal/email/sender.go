package email

import (
	"context"

	"github.com/RaikyD/esim-fulfillment-service/internal/logger"
)

// DeliveryEmail — данные письма с активацией. Рендеринг и отправка живут во
// внешнем сервисе, здесь только граница.
type DeliveryEmail struct {
	To             string
	OrderNumber    string
	LPA            string
	ActivationCode string
	ICCID          string
	ProductName    string
	Region         string
	DataAmount     string
	Validity       string
}

type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Sender is called exactly once per transition into delivered.
type Sender interface {
	SendDeliveryEmail(ctx context.Context, e DeliveryEmail) (SendResult, error)
}

// LogSender подменяет внешний почтовый сервис: пишет в лог и считает письмо
// отправленным. Сам payload в лог не попадает.
type LogSender struct{}

func (LogSender) SendDeliveryEmail(_ context.Context, e DeliveryEmail) (SendResult, error) {
	logger.Info("delivery email dispatched", "to", e.To, "order", e.OrderNumber)
	return SendResult{Success: true, MessageID: "log-" + e.OrderNumber}, nil
}
