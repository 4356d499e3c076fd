package service

import (
	"time"

	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

// Screen names, also the path segment of each list resource.
const (
	ScreenOrders        = "orders"
	ScreenServices      = "services"
	ScreenPackages      = "packages"
	ScreenNotifications = "notifications"
)

// OrderSchema drives the orders screen: status and service-center filters,
// created-at date range, search over code, customer and plate.
var OrderSchema = listview.Schema[model.Order]{
	Filters: map[string]func(model.Order) string{
		"status":        func(o model.Order) string { return string(o.Status) },
		"serviceCenter": func(o model.Order) string { return o.ServiceCenter },
	},
	Date: func(o model.Order) (time.Time, bool) {
		return o.CreatedAt, !o.CreatedAt.IsZero()
	},
	Search: []func(model.Order) string{
		func(o model.Order) string { return o.Code },
		func(o model.Order) string { return o.CustomerName },
		func(o model.Order) string { return o.CustomerPhone },
		func(o model.Order) string { return o.LicensePlate },
	},
	Sorts: map[string]listview.Compare[model.Order]{
		"code":         listview.ByString(func(o model.Order) string { return o.Code }),
		"customerName": listview.ByString(func(o model.Order) string { return o.CustomerName }),
		"totalAmount":  listview.ByNumber(func(o model.Order) float64 { return o.TotalAmount }),
		"createdAt":    listview.ByTime(func(o model.Order) time.Time { return o.CreatedAt }),
		"scheduledAt": listview.ByTime(func(o model.Order) time.Time {
			if o.ScheduledAt == nil {
				return time.Time{}
			}
			return *o.ScheduledAt
		}),
	},
}

// ServiceSchema drives the service catalogue screen.
var ServiceSchema = listview.Schema[model.Service]{
	Filters: map[string]func(model.Service) string{
		"status":   func(s model.Service) string { return model.ActiveStatus(s.IsActive) },
		"category": func(s model.Service) string { return s.Category },
	},
	Date: func(s model.Service) (time.Time, bool) {
		return s.CreatedAt, !s.CreatedAt.IsZero()
	},
	Search: []func(model.Service) string{
		func(s model.Service) string { return s.Name },
		func(s model.Service) string { return s.Code },
		func(s model.Service) string { return s.Description },
	},
	Sorts: map[string]listview.Compare[model.Service]{
		"name":             listview.ByString(func(s model.Service) string { return s.Name }),
		"price":            listview.ByNumber(func(s model.Service) float64 { return s.Price }),
		"estimatedMinutes": listview.ByNumber(func(s model.Service) int { return s.EstimatedMinutes }),
		"createdAt":        listview.ByTime(func(s model.Service) time.Time { return s.CreatedAt }),
	},
}

// PackageSchema drives the service package screen.
var PackageSchema = listview.Schema[model.ServicePackage]{
	Filters: map[string]func(model.ServicePackage) string{
		"status": func(p model.ServicePackage) string { return model.ActiveStatus(p.IsActive) },
	},
	Date: func(p model.ServicePackage) (time.Time, bool) {
		return p.CreatedAt, !p.CreatedAt.IsZero()
	},
	Search: []func(model.ServicePackage) string{
		func(p model.ServicePackage) string { return p.Name },
		func(p model.ServicePackage) string { return p.Code },
	},
	Sorts: map[string]listview.Compare[model.ServicePackage]{
		"name":            listview.ByString(func(p model.ServicePackage) string { return p.Name }),
		"price":           listview.ByNumber(func(p model.ServicePackage) float64 { return p.Price }),
		"discountedPrice": listview.ByNumber(model.ServicePackage.DiscountedPrice),
		"discountPercent": listview.ByNumber(func(p model.ServicePackage) float64 { return p.DiscountPercent }),
		"totalCredits":    listview.ByNumber(func(p model.ServicePackage) int { return p.TotalCredits }),
		"createdAt":       listview.ByTime(func(p model.ServicePackage) time.Time { return p.CreatedAt }),
	},
}
