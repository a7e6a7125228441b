package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/me/tradebot/internal/config"
	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

// Errors an Exchanger returns to explain why no exchange took place.
var (
	ErrNoPartner      = errors.New("no partner found")
	ErrPartnerTooSlow = errors.New("partner did not confirm in time")
	ErrIllegalPayload = errors.New("partner offered an illegal payload")
)

// Exchanger performs one exchange on the external device. It blocks until
// the partner has traded, the exchange failed, or ctx is done, and returns
// the payload received from the partner.
type Exchanger interface {
	Exchange(ctx context.Context, req *request.Request) (request.Payload, error)
}

// Loopback is an Exchanger without a device: after Delay it hands back the
// offered payload. Used for dry runs and tests.
type Loopback struct {
	Delay time.Duration
}

func (l Loopback) Exchange(ctx context.Context, req *request.Request) (request.Payload, error) {
	req.NotifyMessage(ctx, fmt.Sprintf("loopback exchange using code %04d", req.Code()))
	if l.Delay > 0 {
		timer := time.NewTimer(l.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return req.Payload(), nil
}

// SearchTimeout returns how long a routine waits for a partner for the
// given kind. Unknown kinds are a programming error.
func SearchTimeout(cfg config.DispatchConfig, kind request.Kind) (time.Duration, error) {
	switch kind {
	case request.KindLink, request.KindClone, request.KindAnonymous:
		return cfg.SearchTimeout, nil
	case request.KindDump:
		return 2 * cfg.SearchTimeout, nil
	}
	return 0, fmt.Errorf("search timeout: %w", kind.Validate())
}

// resultFor maps an exchange error to the reason reported to the requester.
// parent is the routine's context, before the search timeout was applied.
func resultFor(parent context.Context, err error) model.Result {
	switch {
	case parent.Err() != nil:
		return model.ResultRoutineStopped
	case errors.Is(err, ErrNoPartner), errors.Is(err, context.DeadlineExceeded):
		return model.ResultNoPartner
	case errors.Is(err, ErrPartnerTooSlow):
		return model.ResultPartnerTooSlow
	case errors.Is(err, ErrIllegalPayload):
		return model.ResultIllegalPayload
	}
	return model.ResultExchangeError
}
