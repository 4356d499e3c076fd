package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

func validPackage() model.ServicePackage {
	return model.ServicePackage{
		Name:            "Gói bảo dưỡng 1 năm",
		Code:            "PKG-01",
		Price:           100000,
		DiscountPercent: 15,
		TotalCredits:    4,
		ValidityDays:    365,
	}
}

func TestServicePackage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ServicePackage)
		field  string
		msg    string
	}{
		{"zero credits", func(p *model.ServicePackage) { p.TotalCredits = 0 }, "totalCredits", MsgCreditsPositive},
		{"negative credits", func(p *model.ServicePackage) { p.TotalCredits = -2 }, "totalCredits", MsgCreditsPositive},
		{"blank name", func(p *model.ServicePackage) { p.Name = "  " }, "name", MsgPackageNameRequired},
		{"blank code", func(p *model.ServicePackage) { p.Code = "" }, "code", MsgPackageCodeRequired},
		{"negative price", func(p *model.ServicePackage) { p.Price = -1 }, "price", MsgPriceNegative},
		{"NaN price", func(p *model.ServicePackage) { p.Price = math.NaN() }, "price", MsgPriceNegative},
		{"discount over 100", func(p *model.ServicePackage) { p.DiscountPercent = 101 }, "discountPercent", MsgDiscountRange},
		{"negative discount", func(p *model.ServicePackage) { p.DiscountPercent = -5 }, "discountPercent", MsgDiscountRange},
		{"zero validity", func(p *model.ServicePackage) { p.ValidityDays = 0 }, "validityDays", MsgValidityPositive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPackage()
			tt.mutate(&p)
			errs := ServicePackage(p)
			require.Error(t, errs.Err())
			assert.Equal(t, tt.msg, errs[tt.field])
			assert.Len(t, errs, 1)
		})
	}

	t.Run("valid package", func(t *testing.T) {
		assert.NoError(t, ServicePackage(validPackage()).Err())
	})

	t.Run("boundary discounts are accepted", func(t *testing.T) {
		p := validPackage()
		p.DiscountPercent = 0
		assert.Empty(t, ServicePackage(p))
		p.DiscountPercent = 100
		assert.Empty(t, ServicePackage(p))
	})
}

func TestService(t *testing.T) {
	errs := Service(model.Service{Name: "", Price: -10, EstimatedMinutes: 0})
	assert.Equal(t, Errors{
		"name":             MsgServiceNameRequired,
		"price":            MsgPriceNegative,
		"estimatedMinutes": MsgDurationPositive,
	}, errs)

	assert.Empty(t, Service(model.Service{Name: "Kiểm tra pin", Price: 0, EstimatedMinutes: 30}))
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name  string
		order model.Order
		want  Errors
	}{
		{
			name:  "valid",
			order: model.Order{CustomerName: "Nguyễn Văn A", CustomerPhone: "0901 234 567", TotalAmount: 500000},
			want:  Errors{},
		},
		{
			name:  "bad phone",
			order: model.Order{CustomerName: "A", CustomerPhone: "12345"},
			want:  Errors{"customerPhone": MsgPhoneInvalid},
		},
		{
			name:  "letters in phone",
			order: model.Order{CustomerName: "A", CustomerPhone: "09012345ab"},
			want:  Errors{"customerPhone": MsgPhoneInvalid},
		},
		{
			name:  "unknown status",
			order: model.Order{CustomerName: "A", CustomerPhone: "0901234567", Status: "shipped"},
			want:  Errors{"status": MsgStatusInvalid},
		},
		{
			name:  "missing name and negative amount",
			order: model.Order{CustomerPhone: "0901234567", TotalAmount: -1},
			want:  Errors{"customerName": MsgCustomerRequired, "totalAmount": MsgAmountNegative},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Order(tt.order))
		})
	}
}

func TestErrorsMessage(t *testing.T) {
	errs := Errors{"price": "b", "name": "a"}
	assert.Equal(t, "name: a; price: b", errs.Error())
	assert.Nil(t, Errors{}.Err())
}
