package tax

import (
	"context"
	"log/slog"

	"pvetax/internal/metrics"

	"github.com/shopspring/decimal"
)

type SecurityClass string

const (
	SecurityHigh    SecurityClass = "hisec"
	SecurityLow     SecurityClass = "losec"
	SecurityNull    SecurityClass = "nullsec"
	SecurityJspace  SecurityClass = "jspace"
	SecurityUnknown SecurityClass = "unknown"
)

// ClassifySecurity buckets a solar system security status. -0.99 and values
// below it other than exactly -1.0 fall through to unknown.
func ClassifySecurity(status float64) SecurityClass {
	switch {
	case status >= 0.5:
		return SecurityHigh
	case status > 0.0:
		return SecurityLow
	case status <= 0.0 && status > -0.99:
		return SecurityNull
	case status == -1.0:
		return SecurityJspace
	default:
		return SecurityUnknown
	}
}

// Location is what the resolver needs to know about a solar system.
type Location struct {
	SecurityStatus float64
	SpecialZone    bool
}

type LocationSource interface {
	Lookup(ctx context.Context, locationID int64) (Location, error)
}

type Policy struct {
	HisecRate       decimal.Decimal
	LosecRate       decimal.Decimal
	NullsecRate     decimal.Decimal
	JspaceRate      decimal.Decimal
	SpecialZoneRate decimal.Decimal
	FallbackRate    decimal.Decimal
	TaxHisec        bool
	TaxLosec        bool
	TaxNullsec      bool
	TaxJspace       bool
	TaxSpecialZone  bool
	AllowList       []int64
	DenyList        []int64
}

func (p Policy) rateFor(class SecurityClass) decimal.Decimal {
	switch class {
	case SecurityHigh:
		return toggled(p.TaxHisec, p.HisecRate)
	case SecurityLow:
		return toggled(p.TaxLosec, p.LosecRate)
	case SecurityNull:
		return toggled(p.TaxNullsec, p.NullsecRate)
	case SecurityJspace:
		return toggled(p.TaxJspace, p.JspaceRate)
	default:
		return p.FallbackRate
	}
}

func toggled(enabled bool, rate decimal.Decimal) decimal.Decimal {
	if !enabled {
		return decimal.Zero
	}
	return rate
}

type Resolver struct {
	policy    Policy
	allow     map[int64]struct{}
	deny      map[int64]struct{}
	locations LocationSource
	logger    *slog.Logger
}

func NewResolver(policy Policy, locations LocationSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		policy:    policy,
		allow:     idSet(policy.AllowList),
		deny:      idSet(policy.DenyList),
		locations: locations,
		logger:    logger,
	}
}

// Resolve returns the tax rate for income earned at locationID. It never
// fails: any lookup problem degrades to the fallback rate. Income without a
// location is taxed at the fallback rate before the allow and deny lists are
// consulted, since there is nothing to match them against.
func (r *Resolver) Resolve(ctx context.Context, locationID *int64, activity Activity) decimal.Decimal {
	if locationID == nil {
		metrics.RateFallbacks.WithLabelValues("no_location").Inc()
		return r.policy.FallbackRate
	}
	id := *locationID
	if len(r.allow) > 0 {
		if _, ok := r.allow[id]; !ok {
			return decimal.Zero
		}
	}
	if _, ok := r.deny[id]; ok {
		return decimal.Zero
	}
	if r.locations == nil {
		metrics.RateFallbacks.WithLabelValues("lookup_failed").Inc()
		return r.policy.FallbackRate
	}
	location, err := r.locations.Lookup(ctx, id)
	if err != nil {
		r.logger.Warn("location lookup failed, using fallback rate",
			"location_id", id,
			"activity", string(activity),
			"error", err,
		)
		metrics.RateFallbacks.WithLabelValues("lookup_failed").Inc()
		return r.policy.FallbackRate
	}
	if location.SpecialZone {
		return toggled(r.policy.TaxSpecialZone, r.policy.SpecialZoneRate)
	}
	class := ClassifySecurity(location.SecurityStatus)
	if class == SecurityUnknown {
		metrics.RateFallbacks.WithLabelValues("unknown_security").Inc()
	}
	return r.policy.rateFor(class)
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
