package service

import (
	"context"
	"errors"
	"testing"

	"storefront-service/internal/model"
	"storefront-service/pkg/events"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

var alice = model.Principal{UserID: 1, Username: "alice"}

const (
	lockProductSQL   = `SELECT \* FROM "products" WHERE "products"."id" = \$1 ORDER BY "products"."id" LIMIT .+ FOR UPDATE`
	shareProductSQL  = `SELECT \* FROM "products" WHERE "products"."id" = \$1 ORDER BY "products"."id" LIMIT .+ FOR SHARE`
	lockCartLineSQL  = `SELECT \* FROM "cart_items" WHERE user_id = \$1 AND product_id = \$2 LIMIT .+ FOR UPDATE`
	lockCartItemSQL  = `SELECT \* FROM "cart_items" WHERE "cart_items"."id" = \$1 ORDER BY "cart_items"."id" LIMIT .+ FOR UPDATE`
	listCartSQL      = `SELECT \* FROM "cart_items" WHERE user_id = \$1 ORDER BY id$`
	productsByIDsSQL = `SELECT \* FROM "products" WHERE id IN \(\$1,\$2\) ORDER BY id$`
)

func newCartService(t *testing.T) (*CartService, sqlmock.Sqlmock, *recordingPublisher) {
	db, mock := newMockDB(t)
	pub := &recordingPublisher{}
	return NewCartService(db, nopLogger(), pub, NewUserLocks()), mock, pub
}

func TestCartAdd_CreatesLine(t *testing.T) {
	svc, mock, pub := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockProductSQL).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(1, "A", "10.00", 5, 1))
	mock.ExpectQuery(lockCartLineSQL).
		WillReturnRows(sqlmock.NewRows(cartCols))
	mock.ExpectQuery(`INSERT INTO "cart_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectCommit()

	item, err := svc.Add(context.Background(), alice, 1, 2)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.ID != 10 || item.Quantity != 2 || item.UserID != alice.UserID {
		t.Fatalf("unexpected item: %+v", item)
	}
	if got := pub.topics(); len(got) != 1 || got[0] != events.TopicCartItemAdded {
		t.Fatalf("unexpected events: %v", got)
	}
	expectationsMet(t, mock)
}

func TestCartAdd_IncrementsExistingLine(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockProductSQL).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(1, "A", "10.00", 5, 1))
	mock.ExpectQuery(lockCartLineSQL).
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(10, 1, 1, 2))
	mock.ExpectExec(`UPDATE "cart_items" SET "quantity"=\$1 WHERE "id" = \$2`).
		WithArgs(5, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := svc.Add(context.Background(), alice, 1, 3)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.ID != 10 || item.Quantity != 5 {
		t.Fatalf("unexpected item: %+v", item)
	}
	expectationsMet(t, mock)
}

func TestCartAdd_InsufficientStockWritesNothing(t *testing.T) {
	svc, mock, pub := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockProductSQL).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(2, "B", "7.50", 1, 1))
	mock.ExpectRollback()

	_, err := svc.Add(context.Background(), alice, 2, 3)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Available != 1 || stockErr.ProductName != "B" {
		t.Fatalf("unexpected error detail: %+v", stockErr)
	}
	if len(pub.topics()) != 0 {
		t.Fatalf("no event expected on failure")
	}
	expectationsMet(t, mock)
}

func TestCartAdd_UnknownProduct(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockProductSQL).WillReturnRows(sqlmock.NewRows(productCols))
	mock.ExpectRollback()

	if _, err := svc.Add(context.Background(), alice, 99, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCartAdd_InvalidQuantityTouchesNoRows(t *testing.T) {
	svc, mock, _ := newCartService(t)

	for _, qty := range []int{0, -1} {
		if _, err := svc.Add(context.Background(), alice, 1, qty); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("qty %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
	expectationsMet(t, mock)
}

func TestCartUpdate_ForeignItemIsUnauthorized(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockCartItemSQL).
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(10, 2, 1, 1))
	mock.ExpectRollback()

	if _, err := svc.Update(context.Background(), alice, 10, 2); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCartUpdate_MissingItem(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockCartItemSQL).WillReturnRows(sqlmock.NewRows(cartCols))
	mock.ExpectRollback()

	if _, err := svc.Update(context.Background(), alice, 10, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCartUpdate_OverStock(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockCartItemSQL).
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(10, 1, 1, 1))
	mock.ExpectQuery(shareProductSQL).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(1, "A", "10.00", 2, 1))
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), alice, 10, 3)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Available != 2 {
		t.Fatalf("expected insufficient stock with 2 available, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCartUpdate_ReturnsSubtotalAndTotal(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockCartItemSQL).
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(10, 1, 1, 1))
	mock.ExpectQuery(shareProductSQL).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(1, "A", "10.00", 5, 1))
	mock.ExpectExec(`UPDATE "cart_items" SET "quantity"=\$1 WHERE "id" = \$2`).
		WithArgs(3, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(listCartSQL).
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(10, 1, 1, 3).AddRow(11, 1, 2, 1))
	mock.ExpectQuery(productsByIDsSQL).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(1, "A", "10.00", 5, 1).
			AddRow(2, "B", "7.50", 1, 1))
	mock.ExpectCommit()

	totals, err := svc.Update(context.Background(), alice, 10, 3)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !totals.Subtotal.Equal(decimal.RequireFromString("30")) {
		t.Fatalf("subtotal = %s", totals.Subtotal)
	}
	if !totals.Total.Equal(decimal.RequireFromString("37.50")) {
		t.Fatalf("total = %s", totals.Total)
	}
	expectationsMet(t, mock)
}

func TestCartRemove_IsIdempotent(t *testing.T) {
	svc, mock, pub := newCartService(t)

	mock.ExpectExec(`DELETE FROM "cart_items" WHERE id = \$1 AND user_id = \$2`).
		WithArgs(10, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "cart_items" WHERE id = \$1 AND user_id = \$2`).
		WithArgs(10, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	for i := 0; i < 2; i++ {
		if err := svc.Remove(context.Background(), alice, 10); err != nil {
			t.Fatalf("Remove #%d: %v", i+1, err)
		}
	}
	if got := pub.topics(); len(got) != 1 || got[0] != events.TopicCartItemRemoved {
		t.Fatalf("expected exactly one removal event, got %v", got)
	}
	expectationsMet(t, mock)
}

func TestCartList_TotalsAtCurrentPrice(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectQuery(listCartSQL).
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(10, 1, 1, 2).AddRow(11, 1, 2, 1))
	mock.ExpectQuery(productsByIDsSQL).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(1, "A", "10.00", 5, 1).
			AddRow(2, "B", "7.50", 1, 1))

	view, err := svc.List(context.Background(), alice)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(view.Lines) != 2 || view.Lines[0].Item.ID != 10 || view.Lines[1].Item.ID != 11 {
		t.Fatalf("unexpected lines: %+v", view.Lines)
	}
	if !view.Total.Equal(decimal.RequireFromString("27.50")) {
		t.Fatalf("total = %s", view.Total)
	}
	expectationsMet(t, mock)
}

func TestCartList_Empty(t *testing.T) {
	svc, mock, _ := newCartService(t)

	mock.ExpectQuery(listCartSQL).WillReturnRows(sqlmock.NewRows(cartCols))

	view, err := svc.List(context.Background(), alice)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(view.Lines) != 0 || !view.Total.IsZero() {
		t.Fatalf("expected empty cart, got %+v", view)
	}
	expectationsMet(t, mock)
}
