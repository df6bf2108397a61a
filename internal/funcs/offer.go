package funcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/israelwong/promediamx-sub002/internal/messaging"
	"github.com/israelwong/promediamx-sub002/internal/offers"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// ShowOffer presents one offer or the whole active catalog, with images
// where the channel can render them.
type ShowOffer struct {
	store  OfferStore
	logger *logging.Logger
}

// NewShowOffer builds the offer presentation executor.
func NewShowOffer(store OfferStore, logger *logging.Logger) *ShowOffer {
	if store == nil {
		panic("funcs: offer store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ShowOffer{store: store, logger: logger}
}

func (e *ShowOffer) Name() string { return FnMostrarOferta }

func (e *ShowOffer) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	name := stringArg(args, argOferta)
	if name == "" {
		return e.showAll(ctx, ec)
	}

	offer, err := e.store.FindByName(ctx, ec.BusinessID, name)
	if err != nil {
		if errors.Is(err, offers.ErrOfferNotFound) {
			return e.showAll(ctx, ec)
		}
		return nil, fmt.Errorf("funcs: find offer: %w", err)
	}

	res := &Result{
		Content: describeOffer(*offer),
		AIContextData: map[string]any{
			argOferta:        offer.Name,
			"ofertaId":       offer.ID.String(),
			argMontoCentavos: offer.PriceCents,
		},
	}
	if offer.ImageURL != "" {
		res.Media = []messaging.MediaItem{{Type: "image", URL: offer.ImageURL, Caption: offer.Name}}
	}
	return res, nil
}

func (e *ShowOffer) showAll(ctx context.Context, ec ExecutionContext) (*Result, error) {
	active, err := e.store.ListActive(ctx, ec.BusinessID, ec.Now)
	if err != nil {
		return nil, fmt.Errorf("funcs: list offers: %w", err)
	}
	if len(active) == 0 {
		return &Result{Content: "Por ahora no tenemos promociones vigentes, pero pregúntame por nuestros servicios."}, nil
	}

	var b strings.Builder
	b.WriteString("Estas son nuestras promociones vigentes:\n")
	cards := make([]map[string]any, 0, len(active))
	var media []messaging.MediaItem
	for _, o := range active {
		fmt.Fprintf(&b, "• %s: %s\n", o.Name, formatMoney(o.PriceCents, o.Currency))
		card := map[string]any{
			"ofertaId": o.ID.String(),
			"nombre":   o.Name,
			"precio":   formatMoney(o.PriceCents, o.Currency),
		}
		if o.ImageURL != "" {
			card["imagen"] = o.ImageURL
			media = append(media, messaging.MediaItem{Type: "image", URL: o.ImageURL, Caption: o.Name})
		}
		cards = append(cards, card)
	}
	b.WriteString("¿Te interesa alguna?")

	return &Result{
		Content:   b.String(),
		Media:     media,
		UIPayload: map[string]any{"tipo": "ofertas", "ofertas": cards},
	}, nil
}

func describeOffer(o offers.Offer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s.", o.Name, formatMoney(o.PriceCents, o.Currency))
	if o.Description != "" {
		b.WriteString(" " + o.Description)
	}
	if o.ValidUntil != nil {
		fmt.Fprintf(&b, " Vigente hasta el %s.", o.ValidUntil.Format("02/01/2006"))
	}
	b.WriteString(" ¿Te gustaría aprovecharla?")
	return b.String()
}

// AcceptOffer locks the user onto a named offer and, when it has a price,
// hands off to the payment flow with fully resolved arguments.
type AcceptOffer struct {
	store  OfferStore
	logger *logging.Logger
}

// NewAcceptOffer builds the offer acceptance executor.
func NewAcceptOffer(store OfferStore, logger *logging.Logger) *AcceptOffer {
	if store == nil {
		panic("funcs: offer store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AcceptOffer{store: store, logger: logger}
}

func (e *AcceptOffer) Name() string { return FnAceptarOferta }

func (e *AcceptOffer) Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (*Result, error) {
	name := stringArg(args, argOferta)
	if name == "" {
		return &Result{Content: "¿Qué promoción te gustaría tomar?"}, nil
	}

	offer, err := e.store.FindByName(ctx, ec.BusinessID, name)
	if err != nil {
		if errors.Is(err, offers.ErrOfferNotFound) {
			return &Result{
				Content: fmt.Sprintf("No encontré la promoción \"%s\". ¿Quieres que te muestre las vigentes?", name),
			}, nil
		}
		return nil, fmt.Errorf("funcs: find offer: %w", err)
	}
	if offer.ValidUntil != nil && offer.ValidUntil.Before(ec.Now) {
		return &Result{
			Content: fmt.Sprintf("La promoción %s ya venció. ¿Te muestro las vigentes?", offer.Name),
		}, nil
	}

	if offer.PriceCents <= 0 {
		return &Result{
			Content: fmt.Sprintf("¡Excelente elección! Tomamos nota de que quieres la promoción %s.", offer.Name),
			AIContextData: map[string]any{
				argOferta:  offer.Name,
				"ofertaId": offer.ID.String(),
			},
		}, nil
	}

	return &Result{
		Content: fmt.Sprintf("¡Excelente elección! La promoción %s tiene un costo de %s. ¿Procedemos con el pago?",
			offer.Name, formatMoney(offer.PriceCents, offer.Currency)),
		AIContextData: HandOff(FnIniciarPago, map[string]any{
			argConcepto:      offer.Name,
			argMontoCentavos: offer.PriceCents,
			"moneda":         offer.Currency,
			"referencia":     offer.ID.String(),
		}),
	}, nil
}
