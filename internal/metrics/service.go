package metrics

import (
	"context"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/snapshot"
)

// Service publishes snapshot figures as gauges so dashboards follow the daily report
// without querying the store.
type Service struct{}

// NewService creates a new metrics Service.
func NewService() *Service {
	return &Service{}
}

// Export records the report's tier, fund, held-out and gap figures. Implements worker.AfterSnapshotHook.
func (s *Service) Export(_ context.Context, report snapshot.Report) error {
	v := report.Admin
	for _, r := range []domain.TieredPnLResult{v.Client, v.Fidus, v.Reinvested} {
		observeTier(string(r.Tier), r)
	}
	observeTier("total", v.Total)

	for _, f := range v.Funds {
		FundPnL.WithLabelValues(string(f.Fund)).Set(f.TruePnL.InexactFloat64())
	}
	for _, h := range []domain.HeldOutBalance{v.Separation, v.Intermediary} {
		if h.CapitalSource == "" {
			continue
		}
		HeldOutEquity.WithLabelValues(string(h.CapitalSource)).Set(h.Equity.InexactFloat64())
	}

	if report.Gap != nil {
		FundGap.Set(report.Gap.Gap.SurplusOrDeficit.InexactFloat64())
		FundCoverage.Set(report.Gap.Gap.CoverageRatio.InexactFloat64())
	}

	status := "ok"
	if len(report.Warnings) > 0 {
		status = "warning"
	}
	SnapshotsTotal.WithLabelValues(status).Inc()
	return nil
}

func observeTier(label string, r domain.TieredPnLResult) {
	TierPnL.WithLabelValues(label).Set(r.TruePnL.InexactFloat64())
	TierEquity.WithLabelValues(label).Set(r.CurrentEquity.InexactFloat64())
}
