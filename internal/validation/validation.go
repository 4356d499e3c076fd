// Package validation checks drafts before they are sent to the backend.
package validation

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

// Errors maps a field name to a user-facing message. A non-empty Errors is an
// error and blocks submission.
type Errors map[string]string

// Error joins the messages in field order.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, f+": "+e[f])
	}
	return strings.Join(msgs, "; ")
}

// Err returns e as an error, or nil when there are no field errors.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) check(ok bool, field, msg string) {
	if !ok {
		if _, exists := e[field]; !exists {
			e[field] = msg
		}
	}
}

const (
	MsgPackageNameRequired = "Tên gói không được để trống"
	MsgPackageCodeRequired = "Mã gói không được để trống"
	MsgPriceNegative       = "Giá không được âm"
	MsgDiscountRange       = "Giảm giá phải nằm trong khoảng 0-100"
	MsgCreditsPositive     = "Tổng số credit phải lớn hơn 0"
	MsgValidityPositive    = "Số ngày hiệu lực phải lớn hơn 0"
	MsgServiceNameRequired = "Tên dịch vụ không được để trống"
	MsgDurationPositive    = "Thời gian dự kiến phải lớn hơn 0"
	MsgCustomerRequired    = "Tên khách hàng không được để trống"
	MsgPhoneInvalid        = "Số điện thoại không hợp lệ"
	MsgAmountNegative      = "Tổng tiền không được âm"
	MsgStatusInvalid       = "Trạng thái không hợp lệ"
)

// ServicePackage validates a package draft.
func ServicePackage(p model.ServicePackage) Errors {
	errs := Errors{}
	errs.check(notBlank(p.Name), "name", MsgPackageNameRequired)
	errs.check(notBlank(p.Code), "code", MsgPackageCodeRequired)
	errs.check(finite(p.Price) && p.Price >= 0, "price", MsgPriceNegative)
	errs.check(finite(p.DiscountPercent) && p.DiscountPercent >= 0 && p.DiscountPercent <= 100,
		"discountPercent", MsgDiscountRange)
	errs.check(p.TotalCredits > 0, "totalCredits", MsgCreditsPositive)
	errs.check(p.ValidityDays > 0, "validityDays", MsgValidityPositive)
	return errs
}

// Service validates a service draft.
func Service(s model.Service) Errors {
	errs := Errors{}
	errs.check(notBlank(s.Name), "name", MsgServiceNameRequired)
	errs.check(finite(s.Price) && s.Price >= 0, "price", MsgPriceNegative)
	errs.check(s.EstimatedMinutes > 0, "estimatedMinutes", MsgDurationPositive)
	return errs
}

// Order validates an order draft.
func Order(o model.Order) Errors {
	errs := Errors{}
	errs.check(notBlank(o.CustomerName), "customerName", MsgCustomerRequired)
	errs.check(phone(o.CustomerPhone), "customerPhone", MsgPhoneInvalid)
	errs.check(finite(o.TotalAmount) && o.TotalAmount >= 0, "totalAmount", MsgAmountNegative)
	if o.Status != "" {
		errs.check(o.Status.Valid(), "status", MsgStatusInvalid)
	}
	return errs
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// phone accepts 10 or 11 digits, optionally separated by spaces, dots or dashes.
func phone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == ' ' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return digits == 10 || digits == 11
}
