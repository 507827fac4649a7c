package domain

import "time"

// TransitionKind labels a lifecycle transition for metrics, events and logs.
type TransitionKind string

const (
	TransitionConfirm  TransitionKind = "confirm"
	TransitionMarkPaid TransitionKind = "mark_paid"
	TransitionPrepare  TransitionKind = "prepare"
	TransitionShip     TransitionKind = "ship"
	TransitionDeliver  TransitionKind = "deliver"
	TransitionCancel   TransitionKind = "cancel"
)

// Transition is one guarded lifecycle operation. Each variant carries exactly
// the fields its transition requires, so required data is enforced by the type
// system instead of a string-keyed extras bag.
//
// Validate rejects malformed input before any storage access. Apply checks the
// transition guards against the current order state and mutates the order in
// place; it must run on a row-locked read of the order so two concurrent
// transitions on the same order serialize.
type Transition interface {
	Kind() TransitionKind
	Validate() error
	Apply(o *Order, now time.Time) error
}

// guardForward rejects status movement out of a terminal state and any
// regression along the lifecycle rank.
func guardForward(o *Order, target OrderStatus) error {
	if o.Status == OrderStatusCanceled {
		return NewConflict("order %s is cancelled and accepts no further transitions", o.ID)
	}
	if o.Status == OrderStatusDelivered {
		return NewConflict("order %s is already delivered", o.ID)
	}
	if statusRank[target] <= statusRank[o.Status] {
		return NewConflict("order %s cannot move from %s to %s", o.ID, o.Status, target)
	}
	return nil
}

// Confirm moves a pending order to CONFIRMADO.
type Confirm struct{}

func (Confirm) Kind() TransitionKind { return TransitionConfirm }

func (Confirm) Validate() error { return nil }

func (Confirm) Apply(o *Order, now time.Time) error {
	if err := guardForward(o, OrderStatusConfirmed); err != nil {
		return err
	}
	o.Status = OrderStatusConfirmed
	if o.ConfirmedAt == nil {
		t := now
		o.ConfirmedAt = &t
	}
	o.UpdatedAt = now
	return nil
}

// MarkPaid records a payment confirmation: payment status becomes PAGO and the
// order advances to CONFIRMADO in the same write. Duplicate confirmation and
// paying a cancelled order are conflicts, not no-ops.
type MarkPaid struct {
	Reference string
}

func (MarkPaid) Kind() TransitionKind { return TransitionMarkPaid }

func (t MarkPaid) Validate() error {
	if t.Reference == "" {
		return ErrPaymentRefRequired
	}
	return nil
}

func (t MarkPaid) Apply(o *Order, now time.Time) error {
	if o.Status == OrderStatusCanceled {
		return NewConflict("cannot confirm payment of cancelled order %s", o.ID)
	}
	if o.PaymentStatus == PaymentStatusPaid {
		return NewConflict("payment for order %s is already confirmed", o.ID)
	}
	if o.Status == OrderStatusDelivered {
		return NewConflict("order %s is already delivered", o.ID)
	}

	o.PaymentStatus = PaymentStatusPaid
	o.PaymentRef = t.Reference
	if o.PaidAt == nil {
		t := now
		o.PaidAt = &t
	}
	// Payment confirmation also advances the lifecycle, but never backwards.
	if statusRank[o.Status] < statusRank[OrderStatusConfirmed] {
		o.Status = OrderStatusConfirmed
	}
	if o.ConfirmedAt == nil {
		t := now
		o.ConfirmedAt = &t
	}
	o.UpdatedAt = now
	return nil
}

// StartPreparing moves a confirmed order to EM_PREPARACAO.
type StartPreparing struct{}

func (StartPreparing) Kind() TransitionKind { return TransitionPrepare }

func (StartPreparing) Validate() error { return nil }

func (StartPreparing) Apply(o *Order, now time.Time) error {
	if err := guardForward(o, OrderStatusPreparing); err != nil {
		return err
	}
	o.Status = OrderStatusPreparing
	o.UpdatedAt = now
	return nil
}

// Ship moves the order to ENVIADO and records the tracking code and carrier.
type Ship struct {
	TrackingCode string
	Carrier      string
}

func (Ship) Kind() TransitionKind { return TransitionShip }

func (t Ship) Validate() error {
	if t.TrackingCode == "" || t.Carrier == "" {
		return ErrTrackingRequired
	}
	return nil
}

func (t Ship) Apply(o *Order, now time.Time) error {
	if err := guardForward(o, OrderStatusShipped); err != nil {
		return err
	}
	o.Status = OrderStatusShipped
	o.TrackingCode = t.TrackingCode
	o.Carrier = t.Carrier
	if o.ShippedAt == nil {
		t := now
		o.ShippedAt = &t
	}
	o.UpdatedAt = now
	return nil
}

// Deliver moves the order to the terminal ENTREGUE state. Re-asserting ENTREGUE
// on an already delivered order is accepted without re-stamping the milestone.
type Deliver struct{}

func (Deliver) Kind() TransitionKind { return TransitionDeliver }

func (Deliver) Validate() error { return nil }

func (Deliver) Apply(o *Order, now time.Time) error {
	if o.Status == OrderStatusDelivered {
		return nil
	}
	if err := guardForward(o, OrderStatusDelivered); err != nil {
		return err
	}
	o.Status = OrderStatusDelivered
	if o.DeliveredAt == nil {
		t := now
		o.DeliveredAt = &t
	}
	o.UpdatedAt = now
	return nil
}

// Cancel moves the order to CANCELADO with a mandatory reason. It is an
// administrative override: unlike the forward transitions it is accepted even
// for delivered orders. A second cancel is a conflict.
type Cancel struct {
	Reason string
}

func (Cancel) Kind() TransitionKind { return TransitionCancel }

func (t Cancel) Validate() error {
	if t.Reason == "" {
		return ErrCancelReasonRequired
	}
	return nil
}

func (t Cancel) Apply(o *Order, now time.Time) error {
	if o.Status == OrderStatusCanceled {
		return NewConflict("order %s is already cancelled", o.ID)
	}
	o.Status = OrderStatusCanceled
	o.CancelReason = t.Reason
	if o.CanceledAt == nil {
		t := now
		o.CanceledAt = &t
	}
	o.UpdatedAt = now
	return nil
}
