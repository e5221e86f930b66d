package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeIntent — запрос на входящий платёж (эскроу-депозит организатора).
// DisplayableCode показывается плательщику, RawImage — QR-код платежа.
type ChargeIntent struct {
	Reference       string
	DisplayableCode string
	RawImage        []byte
}

// TransferResult — результат одной исходящей выплаты. Single attempt:
// ретраи и идемпотентность на стороне вызывающего.
type TransferResult struct {
	Success    bool
	TransferID string
	Error      string
}

type PaymentGateway interface {
	CreateChargeIntent(ctx context.Context, amount decimal.Decimal, payerIdentity string) (*ChargeIntent, error)
}

type PayoutAdapter interface {
	Transfer(ctx context.Context, amount decimal.Decimal, destination, description string) (*TransferResult, error)
}
