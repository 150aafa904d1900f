package service

import (
	"time"

	"github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
)

func toAdminView(row domain.AdminRow, now time.Time) domain.AdminView {
	return domain.AdminView{
		ID:        row.ID.String(),
		Status:    row.EffectiveStatus(now),
		StartDate: row.StartDate.UTC().Format(time.RFC3339),
		EndDate:   row.EndDate.UTC().Format(time.RFC3339),
		PaymentID: row.PaymentID,
		Amount:    row.Amount,
		User: domain.UserSummary{
			ID:    row.UserID.String(),
			Name:  row.UserName,
			Email: row.UserEmail,
		},
		Plan: domain.PlanSummary{
			ID:           row.PlanID.String(),
			Name:         row.PlanName,
			Price:        row.PlanPrice,
			DurationDays: row.PlanDuration,
		},
		CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func paginationInfo(req domain.ListRequest, count int64) pagination.PageInfo {
	return pagination.BuildPageInfo(req.Pagination, count)
}
