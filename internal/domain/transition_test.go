package domain_test

import (
	"testing"
	"time"

	"github.com/lojalivre/orders/internal/domain"
)

func applyTransition(t *testing.T, o *domain.Order, tr domain.Transition) {
	t.Helper()
	if err := tr.Validate(); err != nil {
		t.Fatalf("%s validate: %v", tr.Kind(), err)
	}
	if err := tr.Apply(o, time.Now().UTC()); err != nil {
		t.Fatalf("%s apply: %v", tr.Kind(), err)
	}
}

func TestTransition_FullLifecycle(t *testing.T) {
	order := makeOrder()

	applyTransition(t, &order, domain.MarkPaid{Reference: "X"})
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status after mark paid = %s, want %s", order.Status, domain.OrderStatusConfirmed)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want %s", order.PaymentStatus, domain.PaymentStatusPaid)
	}
	if order.PaidAt == nil || order.ConfirmedAt == nil {
		t.Fatal("mark paid must stamp pago_em and confirmado_em")
	}
	if order.PaymentRef != "X" {
		t.Fatalf("payment ref = %q, want X", order.PaymentRef)
	}

	applyTransition(t, &order, domain.StartPreparing{})
	applyTransition(t, &order, domain.Ship{TrackingCode: "T1", Carrier: "C"})
	if order.Status != domain.OrderStatusShipped || order.ShippedAt == nil {
		t.Fatalf("ship did not move order to shipped with timestamp: %+v", order)
	}
	if order.TrackingCode != "T1" || order.Carrier != "C" {
		t.Fatal("ship must store tracking code and carrier")
	}

	applyTransition(t, &order, domain.Deliver{})
	if order.Status != domain.OrderStatusDelivered || order.DeliveredAt == nil {
		t.Fatal("deliver did not move order to delivered with timestamp")
	}
}

func TestMarkPaid_DuplicateIsConflict(t *testing.T) {
	order := makeOrder()
	applyTransition(t, &order, domain.MarkPaid{Reference: "first"})
	firstPaidAt := *order.PaidAt

	err := domain.MarkPaid{Reference: "second"}.Apply(&order, time.Now().UTC())
	if !domain.IsConflict(err) {
		t.Fatalf("duplicate payment confirmation must conflict, got %v", err)
	}
	if !order.PaidAt.Equal(firstPaidAt) {
		t.Fatal("pago_em must be stamped exactly once")
	}
	if order.PaymentRef != "first" {
		t.Fatal("duplicate confirmation must not overwrite the payment reference")
	}
}

func TestMarkPaid_CancelledOrderRejected(t *testing.T) {
	order := makeOrder()
	applyTransition(t, &order, domain.Cancel{Reason: "buyer request"})

	err := domain.MarkPaid{Reference: "X"}.Apply(&order, time.Now().UTC())
	if !domain.IsConflict(err) {
		t.Fatalf("paying a cancelled order must conflict, got %v", err)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		t.Fatal("cancelled order must never reach PAGO")
	}
}

func TestMarkPaid_RequiresReference(t *testing.T) {
	if err := (domain.MarkPaid{}).Validate(); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDelivered_Frozen(t *testing.T) {
	order := makeOrder()
	applyTransition(t, &order, domain.MarkPaid{Reference: "X"})
	applyTransition(t, &order, domain.Ship{TrackingCode: "T1", Carrier: "C"})
	applyTransition(t, &order, domain.Deliver{})
	deliveredAt := *order.DeliveredAt

	attempts := []domain.Transition{
		domain.Confirm{},
		domain.StartPreparing{},
		domain.Ship{TrackingCode: "T2", Carrier: "C2"},
		domain.MarkPaid{Reference: "Y"},
	}
	for _, tr := range attempts {
		snapshot := order
		if err := tr.Apply(&order, time.Now().UTC()); !domain.IsConflict(err) {
			t.Fatalf("%s on delivered order must conflict, got %v", tr.Kind(), err)
		}
		if order.Status != snapshot.Status || order.TrackingCode != snapshot.TrackingCode {
			t.Fatalf("%s on delivered order mutated it", tr.Kind())
		}
	}

	// Re-asserting delivery is accepted and does not re-stamp the milestone.
	if err := (domain.Deliver{}).Apply(&order, time.Now().UTC()); err != nil {
		t.Fatalf("re-asserting delivered: %v", err)
	}
	if !order.DeliveredAt.Equal(deliveredAt) {
		t.Fatal("entregue_em must be stamped exactly once")
	}
}

func TestCancel_AdministrativeOverrideOnDelivered(t *testing.T) {
	order := makeOrder()
	applyTransition(t, &order, domain.MarkPaid{Reference: "X"})
	applyTransition(t, &order, domain.Ship{TrackingCode: "T1", Carrier: "C"})
	applyTransition(t, &order, domain.Deliver{})

	// Cancel bypasses the delivered freeze.
	applyTransition(t, &order, domain.Cancel{Reason: "fraud investigation"})
	if order.Status != domain.OrderStatusCanceled || order.CanceledAt == nil {
		t.Fatal("cancel must move even a delivered order to CANCELADO")
	}
	if order.CancelReason != "fraud investigation" {
		t.Fatalf("cancel reason = %q", order.CancelReason)
	}
}

func TestCancel_TwiceIsConflict(t *testing.T) {
	order := makeOrder()
	applyTransition(t, &order, domain.Cancel{Reason: "first"})

	err := domain.Cancel{Reason: "second"}.Apply(&order, time.Now().UTC())
	if !domain.IsConflict(err) {
		t.Fatalf("second cancel must conflict, got %v", err)
	}
	if order.CancelReason != "first" {
		t.Fatal("second cancel must not overwrite the reason")
	}
}

func TestCancel_RequiresReason(t *testing.T) {
	if err := (domain.Cancel{}).Validate(); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestShip_RequiresTrackingAndCarrier(t *testing.T) {
	cases := []domain.Ship{
		{},
		{TrackingCode: "T1"},
		{Carrier: "C"},
	}
	for _, tr := range cases {
		if err := tr.Validate(); !domain.IsValidation(err) {
			t.Fatalf("ship %+v must fail validation, got %v", tr, err)
		}
	}
}

func TestTransition_NoStatusRegression(t *testing.T) {
	order := makeOrder()
	applyTransition(t, &order, domain.MarkPaid{Reference: "X"})
	applyTransition(t, &order, domain.Ship{TrackingCode: "T1", Carrier: "C"})

	// Moving backwards along the lifecycle must be rejected.
	if err := (domain.Confirm{}).Apply(&order, time.Now().UTC()); !domain.IsConflict(err) {
		t.Fatalf("regression to confirmed must conflict, got %v", err)
	}
	if err := (domain.StartPreparing{}).Apply(&order, time.Now().UTC()); !domain.IsConflict(err) {
		t.Fatalf("regression to preparing must conflict, got %v", err)
	}
}

func TestCancelledOrder_AcceptsNoTransitions(t *testing.T) {
	order := makeOrder()
	applyTransition(t, &order, domain.Cancel{Reason: "buyer gave up"})

	attempts := []domain.Transition{
		domain.Confirm{},
		domain.StartPreparing{},
		domain.Ship{TrackingCode: "T1", Carrier: "C"},
		domain.Deliver{},
		domain.MarkPaid{Reference: "X"},
	}
	for _, tr := range attempts {
		if err := tr.Apply(&order, time.Now().UTC()); !domain.IsConflict(err) {
			t.Fatalf("%s on cancelled order must conflict, got %v", tr.Kind(), err)
		}
	}
}
