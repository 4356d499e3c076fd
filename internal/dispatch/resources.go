package dispatch

import (
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/internal/validation"
)

// OrderOptions configures the order dispatcher.
func OrderOptions() Options[model.Order] {
	return Options[model.Order]{
		Resource: "orders",
		Validate: validation.Order,
		WithStatus: func(o model.Order, status string) model.Order {
			o.Status = model.OrderStatus(status)
			return o
		},
		ValidStatus: func(status string) bool { return model.OrderStatus(status).Valid() },
		Label: func(o model.Order) string { return "đơn hàng " + o.Code },
	}
}

// ServiceOptions configures the service dispatcher.
func ServiceOptions() Options[model.Service] {
	return Options[model.Service]{
		Resource: "services",
		Validate: validation.Service,
		WithStatus: func(s model.Service, status string) model.Service {
			s.IsActive = status == model.StatusActive
			return s
		},
		ValidStatus: validActive,
		Label: func(s model.Service) string { return "dịch vụ " + s.Name },
	}
}

// PackageOptions configures the service package dispatcher.
func PackageOptions() Options[model.ServicePackage] {
	return Options[model.ServicePackage]{
		Resource: "packages",
		Validate: validation.ServicePackage,
		WithStatus: func(p model.ServicePackage, status string) model.ServicePackage {
			p.IsActive = status == model.StatusActive
			return p
		},
		ValidStatus: validActive,
		Label: func(p model.ServicePackage) string { return "gói " + p.Name },
	}
}

func validActive(status string) bool {
	return status == model.StatusActive || status == model.StatusInactive
}
