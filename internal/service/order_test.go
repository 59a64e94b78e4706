package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/model"
	"storefront-service/pkg/cache"
	"storefront-service/pkg/events"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	lockOrderSQL    = `SELECT \* FROM "orders" WHERE "orders"."id" = \$1 ORDER BY "orders"."id" LIMIT .+ FOR UPDATE`
	orderItemsSQL   = `SELECT \* FROM "order_items" WHERE order_id = \$1 ORDER BY product_id`
	restockSQL      = `UPDATE "products" SET "stock"=stock \+ \$1,"updated_at"=\$2 WHERE id = \$3`
	updateStatusSQL = `UPDATE "orders" SET "status"=\$1,"updated_at"=\$2 WHERE "id" = \$3`
)

func newOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock, *recordingPublisher, *memoryCache) {
	db, mock := newMockDB(t)
	pub := &recordingPublisher{}
	mc := newMemoryCache()
	return NewOrderService(db, nopLogger(), pub, mc, 20), mock, pub, mc
}

func orderRow(status model.OrderStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderCols).AddRow(100, 1, string(status), "27.50", now, now)
}

func TestSetStatus_RejectsUnknownLiteral(t *testing.T) {
	svc, mock, _, _ := newOrderService(t)

	for _, s := range []string{"", "shipped", "PENDING"} {
		if _, err := svc.SetStatus(context.Background(), 100, s); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("%q: expected ErrInvalidStatus, got %v", s, err)
		}
	}
	expectationsMet(t, mock)
}

func TestSetStatus_RejectsDisallowedTransition(t *testing.T) {
	tests := []struct {
		from model.OrderStatus
		to   string
	}{
		{model.StatusPending, "shipping"},
		{model.StatusPending, "completed"},
		{model.StatusConfirmed, "pending"},
		{model.StatusCompleted, "cancelled"},
		{model.StatusCancelled, "confirmed"},
	}
	for _, tt := range tests {
		svc, mock, pub, _ := newOrderService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrderSQL).WillReturnRows(orderRow(tt.from))
		mock.ExpectRollback()

		_, err := svc.SetStatus(context.Background(), 100, tt.to)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
		}
		if len(pub.topics()) != 0 {
			t.Fatalf("%s -> %s: no event expected", tt.from, tt.to)
		}
		expectationsMet(t, mock)
	}
}

func TestSetStatus_AppliesAllowedTransition(t *testing.T) {
	svc, mock, pub, _ := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WillReturnRows(orderRow(model.StatusConfirmed))
	mock.ExpectExec(updateStatusSQL).
		WithArgs("shipping", sqlmock.AnyArg(), 100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := svc.SetStatus(context.Background(), 100, "shipping")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if order.Status != model.StatusShipping {
		t.Fatalf("status = %s", order.Status)
	}
	if got := pub.topics(); len(got) != 1 || got[0] != events.TopicOrderStatusChanged {
		t.Fatalf("unexpected events: %v", got)
	}
	changed := pub.events[0].event.(events.OrderStatusChanged)
	if changed.From != "confirmed" || changed.To != "shipping" || changed.Restocked {
		t.Fatalf("unexpected event: %+v", changed)
	}
	expectationsMet(t, mock)
}

func TestSetStatus_CancelRestoresStock(t *testing.T) {
	svc, mock, pub, mc := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WillReturnRows(orderRow(model.StatusPending))
	mock.ExpectQuery(orderItemsSQL).
		WillReturnRows(sqlmock.NewRows(orderItemCol).
			AddRow(1000, 100, 1, 2, "10.00").
			AddRow(1001, 100, 2, 1, "7.50"))
	mock.ExpectExec(restockSQL).
		WithArgs(2, sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(restockSQL).
		WithArgs(1, sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateStatusSQL).
		WithArgs("cancelled", sqlmock.AnyArg(), 100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := svc.SetStatus(context.Background(), 100, "cancelled")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if order.Status != model.StatusCancelled {
		t.Fatalf("status = %s", order.Status)
	}
	changed := pub.events[0].event.(events.OrderStatusChanged)
	if !changed.Restocked {
		t.Fatalf("expected restocked event")
	}
	if len(mc.deleted) != 2 || mc.deleted[0] != cache.ProductKey(1) {
		t.Fatalf("expected restocked products invalidated, got %v", mc.deleted)
	}
	expectationsMet(t, mock)
}

func TestSetStatus_SameStatusIsNoop(t *testing.T) {
	svc, mock, pub, _ := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WillReturnRows(orderRow(model.StatusPending))
	mock.ExpectCommit()

	order, err := svc.SetStatus(context.Background(), 100, "pending")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if order.Status != model.StatusPending || len(pub.topics()) != 0 {
		t.Fatalf("expected silent no-op, got %+v events=%v", order, pub.topics())
	}
	expectationsMet(t, mock)
}

func TestSetStatus_UnknownOrder(t *testing.T) {
	svc, mock, _, _ := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WillReturnRows(sqlmock.NewRows(orderCols))
	mock.ExpectRollback()

	if _, err := svc.SetStatus(context.Background(), 100, "confirmed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestGetOrder_OwnerOrAdmin(t *testing.T) {
	const (
		getOrderSQL = `SELECT \* FROM "orders" WHERE "orders"."id" = \$1 ORDER BY "orders"."id" LIMIT`
		preloadSQL  = `SELECT \* FROM "order_items" WHERE "order_items"."order_id" = \$1 ORDER BY id`
	)
	bob := model.Principal{UserID: 2, Username: "bob"}
	admin := model.Principal{UserID: 9, Username: "root", IsAdmin: true}

	svc, mock, _, _ := newOrderService(t)

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(getOrderSQL).WillReturnRows(orderRow(model.StatusPending))
		mock.ExpectQuery(preloadSQL).
			WillReturnRows(sqlmock.NewRows(orderItemCol).AddRow(1000, 100, 1, 2, "10.00"))
	}

	if _, err := svc.Get(context.Background(), bob, 100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner, got %v", err)
	}
	order, err := svc.Get(context.Background(), alice, 100)
	if err != nil || len(order.Items) != 1 {
		t.Fatalf("owner Get = %+v, %v", order, err)
	}
	if _, err := svc.Get(context.Background(), admin, 100); err != nil {
		t.Fatalf("admin Get: %v", err)
	}
	expectationsMet(t, mock)
}

func TestListAll_FiltersByStatus(t *testing.T) {
	svc, mock, _, _ := newOrderService(t)

	if _, err := svc.ListAll(context.Background(), "lost", 1); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders" WHERE status = \$1`).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE status = \$1 ORDER BY created_at DESC, id DESC LIMIT`).
		WillReturnRows(orderRow(model.StatusPending))

	page, err := svc.ListAll(context.Background(), "pending", 0)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if page.Total != 1 || len(page.Orders) != 1 || page.Page != 1 || page.PerPage != 20 {
		t.Fatalf("unexpected page: %+v", page)
	}
	expectationsMet(t, mock)
}
