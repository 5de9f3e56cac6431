package handlers

import (
	"github.com/gartstein/fleet/internal/fleet/controller"
	"github.com/gartstein/fleet/internal/fleet/models"
)

type userView struct {
	*models.User
	CompanyName string          `json:"company_name,omitempty"`
	CompanyInfo *models.Company `json:"company_detail,omitempty"`
}

func toUserView(u *models.User) userView {
	v := userView{User: u}
	if u.Company != nil {
		v.CompanyName = u.Company.Name
		v.CompanyInfo = u.Company
	}
	return v
}

func toUserViews(users []models.User) []userView {
	out := make([]userView, len(users))
	for i := range users {
		out[i] = toUserView(&users[i])
	}
	return out
}

func vehicleReg(v *models.Vehicle) string {
	if v == nil {
		return ""
	}
	return v.RegNumber
}

type shiftView struct {
	*models.Shift
	VehicleReg string `json:"vehicle_reg,omitempty"`
	Active     bool   `json:"is_active"`
}

func toShiftView(s *models.Shift) shiftView {
	return shiftView{Shift: s, VehicleReg: vehicleReg(s.Vehicle), Active: s.Status == models.ShiftActive}
}

type inspectionView struct {
	*models.Inspection
	VehicleReg string `json:"vehicle_reg,omitempty"`
}

func toInspectionView(i *models.Inspection) inspectionView {
	return inspectionView{Inspection: i, VehicleReg: vehicleReg(i.Vehicle)}
}

type issueView struct {
	*models.Issue
	VehicleReg string `json:"vehicle_reg,omitempty"`
}

func toIssueView(i *models.Issue) issueView {
	return issueView{Issue: i, VehicleReg: vehicleReg(i.Vehicle)}
}

type ticketView struct {
	*models.Ticket
	VehicleReg string `json:"vehicle_reg,omitempty"`
}

func toTicketView(t *models.Ticket) ticketView {
	return ticketView{Ticket: t, VehicleReg: vehicleReg(t.Vehicle)}
}

// mapViews converts a list with one of the to*View functions above.
func mapViews[T, V any](items []T, conv func(*T) V) []V {
	out := make([]V, len(items))
	for i := range items {
		out[i] = conv(&items[i])
	}
	return out
}

type subscriptionView struct {
	Company           *models.Company             `json:"company"`
	Subscription      *models.CompanySubscription `json:"subscription"`
	PlanCode          string                      `json:"plan_code,omitempty"`
	CanAccessFeatures bool                        `json:"can_access_features"`
}

func toSubscriptionView(v *controller.SubscriptionView) subscriptionView {
	out := subscriptionView{
		Company:           v.Company,
		Subscription:      v.Subscription,
		CanAccessFeatures: v.CanAccessFeatures,
	}
	if v.Subscription != nil && v.Subscription.Plan != nil {
		out.PlanCode = v.Subscription.Plan.Code
	}
	return out
}
