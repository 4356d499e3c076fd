package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

// aliases maps a canonical field name to the alternative names the backend
// has been seen to use for it, in preference order.
type aliases map[string][]string

// normalize lower-camel-cases keys, snake_case included, and fills each
// canonical key from the first non-null alias when the canonical key itself
// is absent or null.
func normalize(raw map[string]any, a aliases) map[string]any {
	out := make(map[string]any, len(raw)+len(a))
	for k, v := range raw {
		out[camel(k)] = v
	}
	for canonical, alts := range a {
		if v, ok := out[canonical]; ok && v != nil {
			continue
		}
		for _, alt := range alts {
			if v, ok := out[alt]; ok && v != nil {
				out[canonical] = v
				break
			}
		}
	}
	return out
}

func camel(key string) string {
	if !strings.Contains(key, "_") {
		return lowerFirst(key)
	}
	parts := strings.Split(key, "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(strings.ToLower(part[:1]) + part[1:])
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339 and the zone-less layouts the backend emits.
// Zone-less values are read as UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return parseTime(v)
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return data, nil
}

func decodeInto(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(timeHook),
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// parse decodes a payload keeping numbers exact.
func parse(p payload) (any, error) {
	if len(p) == 0 || string(p) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return v, nil
}

// listItems finds the array in a payload: a bare array, or an object
// wrapping it under one of the usual keys.
func listItems(v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return t, nil
	case map[string]any:
		for _, key := range []string{"items", "data", "results", "$values"} {
			if inner, ok := t[key]; ok {
				return listItems(inner)
			}
		}
	}
	return nil, errors.New("payload is not a list")
}

func decodeList[T any](p payload, one func(map[string]any) (T, error)) ([]T, error) {
	v, err := parse(p)
	if err != nil {
		return nil, err
	}
	items, err := listItems(v)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		rec, err := one(m)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// decodeOne returns nil when the payload is empty.
func decodeOne[T any](p payload, one func(map[string]any) (T, error)) (*T, error) {
	v, err := parse(p)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("payload is not an object")
	}
	rec, err := one(m)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var orderAliases = aliases{
	"id":            {"orderId"},
	"code":          {"orderCode", "orderNumber"},
	"customerId":    {"userId"},
	"customerName":  {"fullName", "userName"},
	"customerPhone": {"phone", "phoneNumber"},
	"licensePlate":  {"plateNumber", "vehiclePlate"},
	"vehicleModel":  {"vehicleName"},
	"serviceCenter": {"serviceCenterName", "centerName"},
	"totalAmount":   {"totalPrice", "total", "amount"},
	"createdAt":     {"orderDate", "createdDate"},
	"scheduledAt":   {"appointmentDate", "bookingDate"},
}

func decodeOrder(raw map[string]any) (model.Order, error) {
	var o model.Order
	if err := decodeInto(normalize(raw, orderAliases), &o); err != nil {
		return o, fmt.Errorf("order: %w", err)
	}
	o.Status = normalizeOrderStatus(string(o.Status))
	return o, nil
}

func normalizeOrderStatus(s string) model.OrderStatus {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch key {
	case "pending", "new", "waiting":
		return model.OrderPending
	case "confirmed", "accepted":
		return model.OrderConfirmed
	case "inprogress", "processing":
		return model.OrderInProgress
	case "completed", "done", "finished":
		return model.OrderCompleted
	case "cancelled", "canceled":
		return model.OrderCancelled
	}
	return model.OrderStatus(strings.ToLower(s))
}

var serviceAliases = aliases{
	"id":               {"serviceId"},
	"code":             {"serviceCode"},
	"name":             {"serviceName"},
	"category":         {"categoryName", "type"},
	"price":            {"basePrice"},
	"estimatedMinutes": {"estimatedDuration", "durationMinutes", "duration"},
	"isActive":         {"active"},
}

func decodeService(raw map[string]any) (model.Service, error) {
	var s model.Service
	m := normalize(raw, serviceAliases)
	activeFromStatus(m)
	if err := decodeInto(m, &s); err != nil {
		return s, fmt.Errorf("service: %w", err)
	}
	return s, nil
}

var packageAliases = aliases{
	"id":              {"packageId"},
	"code":            {"packageCode"},
	"name":            {"packageName"},
	"discountPercent": {"discountPercentage", "discount"},
	"totalCredits":    {"credits", "creditAmount"},
	"validityDays":    {"validityPeriod", "durationDays"},
	"isActive":        {"active"},
	"serviceIds":      {"includedServiceIds"},
}

func decodePackage(raw map[string]any) (model.ServicePackage, error) {
	var p model.ServicePackage
	m := normalize(raw, packageAliases)
	activeFromStatus(m)
	if err := decodeInto(m, &p); err != nil {
		return p, fmt.Errorf("service package: %w", err)
	}
	return p, nil
}

// activeFromStatus derives isActive from a textual status when the flag is missing.
func activeFromStatus(m map[string]any) {
	if v, ok := m["isActive"]; ok && v != nil {
		return
	}
	if s, ok := m["status"].(string); ok {
		m["isActive"] = strings.EqualFold(s, model.StatusActive)
	}
}

var vehicleAliases = aliases{
	"id":              {"vehicleId"},
	"licensePlate":    {"plateNumber"},
	"brand":           {"make", "manufacturer"},
	"model":           {"modelName"},
	"batteryCapacity": {"batteryCapacityKwh"},
	"mileage":         {"odometer"},
	"lastServiceDate": {"lastMaintenanceDate"},
}

func decodeVehicle(raw map[string]any) (model.Vehicle, error) {
	var v model.Vehicle
	err := decodeInto(normalize(raw, vehicleAliases), &v)
	return v, wrap("vehicle", err)
}

var bookingAliases = aliases{
	"id":            {"bookingId"},
	"code":          {"bookingCode"},
	"licensePlate":  {"plateNumber"},
	"serviceCenter": {"serviceCenterName", "centerName"},
	"scheduledAt":   {"bookingDate", "appointmentDate"},
	"services":      {"serviceNames"},
}

func decodeBooking(raw map[string]any) (model.Booking, error) {
	var b model.Booking
	err := decodeInto(normalize(raw, bookingAliases), &b)
	return b, wrap("booking", err)
}

var reviewAliases = aliases{
	"id":      {"reviewId"},
	"orderId": {"bookingId"},
	"comment": {"content"},
}

func decodeReview(raw map[string]any) (model.Review, error) {
	var r model.Review
	err := decodeInto(normalize(raw, reviewAliases), &r)
	return r, wrap("review", err)
}

var notificationAliases = aliases{
	"id":        {"notificationId"},
	"body":      {"message", "content"},
	"isRead":    {"read"},
	"createdAt": {"sentAt"},
}

func decodeNotification(raw map[string]any) (model.Notification, error) {
	var n model.Notification
	err := decodeInto(normalize(raw, notificationAliases), &n)
	return n, wrap("notification", err)
}

var reminderAliases = aliases{
	"id":          {"reminderId"},
	"title":       {"reminderType", "type"},
	"message":     {"description", "note"},
	"dueDate":     {"reminderDate", "dueAt"},
	"isDismissed": {"dismissed", "isCompleted"},
}

func decodeReminder(raw map[string]any) (model.Reminder, error) {
	var r model.Reminder
	err := decodeInto(normalize(raw, reminderAliases), &r)
	return r, wrap("reminder", err)
}

var conversationAliases = aliases{
	"id":             {"conversationId"},
	"customerId":     {"userId"},
	"customerName":   {"userName", "guestName"},
	"guestSessionId": {"guestSession", "sessionId"},
	"staffId":        {"assignedStaffId"},
	"lastMessage":    {"lastMessageContent"},
	"lastMessageAt":  {"lastMessageTime", "updatedAt"},
	"unreadCount":    {"unread"},
}

// DecodeConversation normalises one conversation object. The push channel
// uses it for new-conversation notices.
func DecodeConversation(raw map[string]any) (model.Conversation, error) {
	var c model.Conversation
	err := decodeInto(normalize(raw, conversationAliases), &c)
	return c, wrap("conversation", err)
}

var messageAliases = aliases{
	"id":              {"messageId"},
	"clientMessageId": {"clientId", "tempId", "correlationId"},
	"conversationId":  {"chatId"},
	"senderId":        {"senderUserId", "userId"},
	"senderName":      {"senderFullName", "userName"},
	"senderRole":      {"role"},
	"content":         {"message", "text"},
	"createdAt":       {"sentAt", "timestamp"},
}

var attachmentAliases = aliases{
	"fileName":    {"name", "originalName"},
	"url":         {"fileUrl", "path"},
	"contentType": {"mimeType", "fileType"},
	"size":        {"fileSize"},
}

// DecodeMessage normalises one chat message. Decoded messages are server
// confirmed, so their status is sent.
func DecodeMessage(raw map[string]any) (model.Message, error) {
	m := normalize(raw, messageAliases)
	if list, ok := m["attachments"].([]any); ok {
		norm := make([]any, 0, len(list))
		for _, a := range list {
			if am, ok := a.(map[string]any); ok {
				norm = append(norm, normalize(am, attachmentAliases))
			}
		}
		m["attachments"] = norm
	}

	var msg model.Message
	if err := decodeInto(m, &msg); err != nil {
		return msg, fmt.Errorf("message: %w", err)
	}
	msg.Status = model.MessageSent
	return msg, nil
}

// DecodeMessageJSON decodes a single message document, envelope or bare.
func DecodeMessageJSON(raw []byte) (model.Message, error) {
	data, _, err := unwrap(raw)
	if err != nil {
		return model.Message{}, err
	}
	msg, err := decodeOne(data, DecodeMessage)
	if err != nil {
		return model.Message{}, err
	}
	if msg == nil {
		return model.Message{}, errors.New("empty message")
	}
	return *msg, nil
}

// DecodeConversationJSON decodes a single conversation document, envelope or bare.
func DecodeConversationJSON(raw []byte) (model.Conversation, error) {
	data, _, err := unwrap(raw)
	if err != nil {
		return model.Conversation{}, err
	}
	conv, err := decodeOne(data, DecodeConversation)
	if err != nil {
		return model.Conversation{}, err
	}
	if conv == nil {
		return model.Conversation{}, errors.New("empty conversation")
	}
	return *conv, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
