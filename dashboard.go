package proposta

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// DashboardMetrics backs the dashboard cards: proposal counts by status,
// pipeline value, and the approval conversion rate.
type DashboardMetrics struct {
	TotalProposals    int         `json:"total_proposals"`
	SentProposals     int         `json:"sent_proposals"`
	ApprovedProposals int         `json:"approved_proposals"`
	RejectedProposals int         `json:"rejected_proposals"`
	DraftProposals    int         `json:"draft_proposals"`
	PipelineValue     float64     `json:"pipeline_value"`
	ApprovedValue     float64     `json:"approved_value"`
	ClientCount       int         `json:"client_count"`
	ConversionRate    float64     `json:"conversion_rate"`
	Recent            []*Proposal `json:"recent,omitempty"`
}

// BuildDashboard aggregates the metrics the dashboard page renders. One
// proposal listing feeds every counter, so the cards stay consistent with
// each other within a single snapshot.
func BuildDashboard(ctx context.Context, repo RepositoryManager) (*DashboardMetrics, error) {
	records, err := repo.Proposals().ListNewestFirst(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list proposals for dashboard")
	}

	clients, err := repo.Clients().ListByName(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list clients for dashboard")
	}

	metrics := &DashboardMetrics{
		TotalProposals: len(records),
		ClientCount:    len(clients),
	}

	for _, p := range records {
		metrics.PipelineValue += p.Total
		switch p.Status {
		case ProposalSent:
			metrics.SentProposals++
		case ProposalApproved:
			metrics.ApprovedProposals++
			metrics.ApprovedValue += p.Total
		case ProposalRejected:
			metrics.RejectedProposals++
		case ProposalDraft:
			metrics.DraftProposals++
		}
	}

	decided := metrics.ApprovedProposals + metrics.RejectedProposals
	if decided > 0 {
		metrics.ConversionRate = roundCents(float64(metrics.ApprovedProposals) / float64(decided) * 100)
	}

	if len(records) > 5 {
		metrics.Recent = records[:5]
	} else {
		metrics.Recent = records
	}

	return metrics, nil
}
