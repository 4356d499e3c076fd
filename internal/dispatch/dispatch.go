// Package dispatch performs single-record mutations against the backend and
// reconciles the owning screen's collection without a full refetch.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/validation"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
	"github.com/capitalize-ai/ev-service-portal/pkg/metrics"
	"github.com/capitalize-ai/ev-service-portal/pkg/tracing"
)

// ErrNotConfirmed is returned when the user declines a destructive action.
var ErrNotConfirmed = errors.New("action not confirmed")

// API is the backend surface of one resource.
type API[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, draft T) (*T, error)
	Update(ctx context.Context, id int64, draft T) (*T, error)
	Delete(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status string) error
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Confirmed returns a Confirmer that always answers ok. Transports that carry
// the confirmation in the request use it.
func Confirmed(ok bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) bool { return ok })
}

// Options describes how a dispatcher treats one resource.
type Options[T any] struct {
	// Resource names the resource in logs, metrics and prompts.
	Resource string
	// Validate checks a draft before it is sent. Nil skips validation.
	Validate func(T) validation.Errors
	// WithStatus returns the record with only its status field changed.
	WithStatus func(T, string) T
	// ValidStatus reports whether a status value is accepted. Nil accepts any.
	ValidStatus func(string) bool
	// Label renders a record for the delete prompt.
	Label func(T) string
}

// Dispatcher runs the create, update, delete and status actions of one screen.
type Dispatcher[T listview.Keyed] struct {
	screen *listview.Screen[T]
	api    API[T]
	opts   Options[T]
	logger *logger.Logger
}

// New creates a dispatcher bound to screen.
func New[T listview.Keyed](screen *listview.Screen[T], api API[T], opts Options[T], log *logger.Logger) *Dispatcher[T] {
	if opts.Resource == "" {
		opts.Resource = screen.Name()
	}
	return &Dispatcher[T]{
		screen: screen,
		api:    api,
		opts:   opts,
		logger: log.Named("dispatch").With(zap.String("resource", opts.Resource)),
	}
}

// Screen returns the screen the dispatcher reconciles.
func (d *Dispatcher[T]) Screen() *listview.Screen[T] {
	return d.screen
}

// Refresh refetches the whole collection.
func (d *Dispatcher[T]) Refresh(ctx context.Context) error {
	return d.run(ctx, "refresh", 0, func(ctx context.Context) error {
		return d.screen.Refresh(ctx, d.api.List)
	})
}

// Create validates draft, posts it and appends the stored record. When the
// backend does not echo the record the collection is refetched instead.
func (d *Dispatcher[T]) Create(ctx context.Context, draft T) (T, error) {
	var created T
	err := d.run(ctx, "create", 0, func(ctx context.Context) error {
		if err := d.validate(draft); err != nil {
			return err
		}
		rec, err := d.api.Create(ctx, draft)
		if err != nil {
			return err
		}
		if rec == nil {
			created = draft
			return d.screen.Refresh(ctx, d.api.List)
		}
		created = *rec
		d.screen.Append(created)
		return nil
	})
	return created, err
}

// Update validates draft, puts it and swaps the stored record in at the same
// index. When the backend does not echo the record the draft is used.
func (d *Dispatcher[T]) Update(ctx context.Context, draft T) (T, error) {
	id := draft.Key()
	updated := draft
	err := d.run(ctx, "update", id, func(ctx context.Context) error {
		if _, ok := d.screen.Get(id); !ok {
			return fmt.Errorf("%s %d: %w", d.opts.Resource, id, listview.ErrNotFound)
		}
		if err := d.validate(draft); err != nil {
			return err
		}
		rec, err := d.api.Update(ctx, id, draft)
		if err != nil {
			return err
		}
		if rec != nil {
			updated = *rec
		}
		return d.screen.Replace(updated)
	})
	return updated, err
}

// Delete asks confirm, deletes record id and removes it from the collection
// and the selection.
func (d *Dispatcher[T]) Delete(ctx context.Context, id int64, confirm Confirmer) error {
	return d.run(ctx, "delete", id, func(ctx context.Context) error {
		rec, ok := d.screen.Get(id)
		if !ok {
			return fmt.Errorf("%s %d: %w", d.opts.Resource, id, listview.ErrNotFound)
		}
		if confirm == nil || !confirm.Confirm(ctx, d.prompt(rec)) {
			return ErrNotConfirmed
		}
		if err := d.api.Delete(ctx, id); err != nil {
			return err
		}
		return d.screen.Remove(id)
	})
}

// SetStatus patches the status of record id. Only the status field of the
// local record changes.
func (d *Dispatcher[T]) SetStatus(ctx context.Context, id int64, status string) error {
	return d.run(ctx, "status", id, func(ctx context.Context) error {
		if d.opts.WithStatus == nil {
			return fmt.Errorf("%s does not support status changes", d.opts.Resource)
		}
		if d.opts.ValidStatus != nil && !d.opts.ValidStatus(status) {
			return validation.Errors{"status": validation.MsgStatusInvalid}
		}
		if _, ok := d.screen.Get(id); !ok {
			return fmt.Errorf("%s %d: %w", d.opts.Resource, id, listview.ErrNotFound)
		}
		if err := d.api.SetStatus(ctx, id, status); err != nil {
			return err
		}
		return d.screen.Patch(id, func(rec T) T {
			return d.opts.WithStatus(rec, status)
		})
	})
}

func (d *Dispatcher[T]) validate(draft T) error {
	if d.opts.Validate == nil {
		return nil
	}
	return d.opts.Validate(draft).Err()
}

func (d *Dispatcher[T]) prompt(rec T) string {
	label := listview.IDString(rec.Key())
	if d.opts.Label != nil {
		label = d.opts.Label(rec)
	}
	return fmt.Sprintf("Bạn có chắc chắn muốn xóa %s?", label)
}

func (d *Dispatcher[T]) run(ctx context.Context, action string, id int64, fn func(context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, d.opts.Resource+"."+action,
		attribute.String("resource", d.opts.Resource),
		attribute.Int64("record.id", id),
	)
	err := fn(ctx)
	tracing.End(span, err)

	metrics.RecordAction(d.opts.Resource, action, outcome(err))
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs), errors.Is(err, ErrNotConfirmed):
			d.logger.Debug("action not performed", zap.String("action", action), zap.Int64("id", id), zap.Error(err))
		default:
			d.logger.Warn("action failed", zap.String("action", action), zap.Int64("id", id), zap.Error(err))
		}
	}
	return err
}

func outcome(err error) string {
	var verrs validation.Errors
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verrs):
		return "invalid"
	case errors.Is(err, ErrNotConfirmed):
		return "declined"
	case errors.Is(err, listview.ErrStale):
		return "stale"
	}
	return "error"
}
