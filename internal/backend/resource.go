package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

// Resource is the CRUD surface of one backend collection.
type Resource[T any] struct {
	client     *Client
	path       string
	decode     func(map[string]any) (T, error)
	encode     func(T) any
	statusBody func(status string) (any, error)
}

// List fetches the whole collection.
func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	data, err := r.client.do(ctx, http.MethodGet, r.path, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, r.decode)
}

// Create posts a new record. The returned record is nil when the backend
// acknowledged without echoing it.
func (r *Resource[T]) Create(ctx context.Context, draft T) (*T, error) {
	data, err := r.client.do(ctx, http.MethodPost, r.path, r.encode(draft))
	if err != nil {
		return nil, err
	}
	return decodeOne(data, r.decode)
}

// Update replaces record id. The returned record is nil when the backend
// acknowledged without echoing it.
func (r *Resource[T]) Update(ctx context.Context, id int64, draft T) (*T, error) {
	data, err := r.client.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", r.path, id), r.encode(draft))
	if err != nil {
		return nil, err
	}
	return decodeOne(data, r.decode)
}

// Delete removes record id.
func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	_, err := r.client.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", r.path, id), nil)
	return err
}

// SetStatus patches the status field of record id.
func (r *Resource[T]) SetStatus(ctx context.Context, id int64, status string) error {
	if r.statusBody == nil {
		return fmt.Errorf("%s does not support status changes", r.path)
	}
	body, err := r.statusBody(status)
	if err != nil {
		return err
	}
	_, err = r.client.do(ctx, http.MethodPatch, fmt.Sprintf("%s/%d/status", r.path, id), body)
	return err
}

func activeBody(status string) (any, error) {
	switch status {
	case model.StatusActive:
		return map[string]bool{"isActive": true}, nil
	case model.StatusInactive:
		return map[string]bool{"isActive": false}, nil
	}
	return nil, fmt.Errorf("unknown status %q", status)
}

// Orders is the order collection.
func (c *Client) Orders() *Resource[model.Order] {
	return &Resource[model.Order]{
		client: c,
		path:   "/api/orders",
		decode: decodeOrder,
		encode: func(o model.Order) any {
			return map[string]any{
				"customerName":  o.CustomerName,
				"customerPhone": o.CustomerPhone,
				"licensePlate":  o.LicensePlate,
				"vehicleModel":  o.VehicleModel,
				"serviceCenter": o.ServiceCenter,
				"status":        o.Status,
				"totalAmount":   o.TotalAmount,
				"note":          o.Note,
				"scheduledAt":   o.ScheduledAt,
			}
		},
		statusBody: func(status string) (any, error) {
			s := model.OrderStatus(status)
			if !s.Valid() {
				return nil, fmt.Errorf("unknown order status %q", status)
			}
			return map[string]string{"status": status}, nil
		},
	}
}

// Services is the service catalogue.
func (c *Client) Services() *Resource[model.Service] {
	return &Resource[model.Service]{
		client: c,
		path:   "/api/services",
		decode: decodeService,
		encode: func(s model.Service) any {
			return map[string]any{
				"code":             s.Code,
				"name":             s.Name,
				"description":      s.Description,
				"category":         s.Category,
				"price":            s.Price,
				"estimatedMinutes": s.EstimatedMinutes,
				"isActive":         s.IsActive,
			}
		},
		statusBody: activeBody,
	}
}

// Packages is the service package catalogue.
func (c *Client) Packages() *Resource[model.ServicePackage] {
	return &Resource[model.ServicePackage]{
		client: c,
		path:   "/api/service-packages",
		decode: decodePackage,
		encode: func(p model.ServicePackage) any {
			return map[string]any{
				"code":            p.Code,
				"name":            p.Name,
				"description":     p.Description,
				"price":           p.Price,
				"discountPercent": p.DiscountPercent,
				"totalCredits":    p.TotalCredits,
				"validityDays":    p.ValidityDays,
				"isActive":        p.IsActive,
				"serviceIds":      p.ServiceIDs,
			}
		},
		statusBody: activeBody,
	}
}
