package funcs

import (
	"context"
	"fmt"

	"github.com/israelwong/promediamx-sub002/internal/payments"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// StartPayment opens a hosted checkout session and hands the URL back to
// the user. The gateway is opaque; webhooks for completion live elsewhere.
type StartPayment struct {
	checkout payments.CheckoutClient
	logger   *logging.Logger
}

// NewStartPayment builds the payment executor. checkout may be nil when the
// business has no payment gateway configured.
func NewStartPayment(checkout payments.CheckoutClient, logger *logging.Logger) *StartPayment {
	if logger == nil {
		logger = logging.Default()
	}
	return &StartPayment{checkout: checkout, logger: logger}
}

func (e *StartPayment) Name() string { return FnIniciarPago }

func (e *StartPayment) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	if e.checkout == nil {
		return &Result{
			Content: "Por ahora no tenemos pagos en línea habilitados. Puedes pagar directamente en el negocio.",
		}, nil
	}

	concept := stringArg(args, argConcepto)
	if concept == "" {
		return &Result{Content: "¿Qué concepto deseas pagar?"}, nil
	}
	amount := int64Arg(args, argMontoCentavos)
	if amount <= 0 {
		return &Result{
			Content:       fmt.Sprintf("¿Me confirmas el monto a pagar por %s?", concept),
			AIContextData: map[string]any{argConcepto: concept},
		}, nil
	}

	currency := stringArg(args, "moneda")
	if currency == "" {
		currency = ec.Currency
	}

	session, err := e.checkout.CreateSession(ctx, payments.SessionRequest{
		BusinessID:  ec.BusinessID,
		LeadID:      ec.LeadID,
		Concept:     concept,
		AmountCents: amount,
		Currency:    currency,
		Reference:   stringArg(args, "referencia"),
	})
	if err != nil {
		return nil, &UserError{
			Message: "No pude generar tu liga de pago en este momento. Intentémoslo de nuevo en unos minutos.",
			Err:     fmt.Errorf("funcs: create checkout session: %w", err),
		}
	}

	return &Result{
		Content: fmt.Sprintf("Aquí está tu liga de pago por %s (%s):\n%s",
			concept, formatMoney(amount, currency), session.URL),
		UIPayload: map[string]any{
			"tipo":     "pago",
			"url":      session.URL,
			"concepto": concept,
			"monto":    formatMoney(amount, currency),
		},
		AIContextData: map[string]any{
			"pagoSesionId": session.ID,
			argConcepto:    concept,
		},
	}, nil
}
