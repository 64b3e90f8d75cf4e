package store

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var fixedNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return &DB{
		SQL:     sqlx.NewDb(raw, "postgres"),
		nowFunc: func() time.Time { return fixedNow },
	}, mock
}

func stockRow(stock int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"stock"}).AddRow(stock)
}

func testOrder() Order {
	return Order{
		ID:              "8f9e2a10-0000-4000-8000-000000000001",
		UserID:          "u1",
		CustomerName:    "Ada Lovelace",
		CustomerEmail:   "ada@example.com",
		ShippingAddress: "1 Analytical Way",
		Total:           45,
		Status:          StatusPending,
	}
}

func TestCreateOrderTx_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	variation := int64(7)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("UPDATE products SET stock").WillReturnRows(stockRow(8))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectQuery("UPDATE products SET stock").WillReturnRows(stockRow(9))
	mock.ExpectQuery("UPDATE product_variations SET stock").WillReturnRows(stockRow(3))
	mock.ExpectCommit()

	order := testOrder()
	items := []OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: 10},
		{ProductID: 2, VariationID: &variation, Quantity: 1, UnitPrice: 25},
	}

	deltas, err := db.CreateOrderTx(context.Background(), &order, items)
	if err != nil {
		t.Fatalf("CreateOrderTx error: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas = %d, want 2", len(deltas))
	}
	if deltas[0].PreviousStock != 10 || deltas[0].NewStock != 8 {
		t.Fatalf("first delta wrong: %+v", deltas[0])
	}
	if deltas[1].VariationID == nil || *deltas[1].VariationID != variation {
		t.Fatalf("variation lost on delta: %+v", deltas[1])
	}
	// committed timestamps must flow back to the caller for derived events
	if !order.CreatedAt.Equal(fixedNow) || !order.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps not written back: %+v", order)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrderTx_InsufficientStockRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(1, 1))
	// conditional decrement matches no row: stock cannot cover the quantity
	mock.ExpectQuery("UPDATE products SET stock").WillReturnRows(sqlmock.NewRows([]string{"stock"}))
	mock.ExpectRollback()

	order := testOrder()
	_, err := db.CreateOrderTx(context.Background(), &order, []OrderItem{{ProductID: 1, Quantity: 99, UnitPrice: 10}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("transaction not rolled back: %v", err)
	}
}

func TestCreateOrderTx_VariationInsufficientStockRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	variation := int64(7)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("UPDATE products SET stock").WillReturnRows(stockRow(8))
	mock.ExpectQuery("UPDATE product_variations SET stock").WillReturnRows(sqlmock.NewRows([]string{"stock"}))
	mock.ExpectRollback()

	order := testOrder()
	_, err := db.CreateOrderTx(context.Background(), &order, []OrderItem{{ProductID: 1, VariationID: &variation, Quantity: 2, UnitPrice: 10}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("transaction not rolled back: %v", err)
	}
}

func TestCreateOrderTx_MidTransactionFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("UPDATE products SET stock").WillReturnRows(stockRow(8))
	// second item insert dies mid-transaction
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	order := testOrder()
	items := []OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: 10},
		{ProductID: 2, Quantity: 1, UnitPrice: 25},
	}
	deltas, err := db.CreateOrderTx(context.Background(), &order, items)
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("transient failure misclassified: %v", err)
	}
	if deltas != nil {
		t.Fatalf("no deltas may survive a rollback: %v", deltas)
	}
	// everything-or-nothing: no commit, first item's decrement discarded
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("transaction not rolled back: %v", err)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(StatusProcessing, sqlmock.AnyArg(), "o1", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := db.UpdateOrderStatus(context.Background(), "o1", StatusPending, StatusProcessing); err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateOrderStatus_Mismatch(t *testing.T) {
	db, mock := newMockDB(t)
	// the order has already moved on: the conditional update matches nothing
	mock.ExpectExec("UPDATE orders SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.UpdateOrderStatus(context.Background(), "o1", StatusPending, StatusProcessing)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}

func TestRecordStockMovement(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO stock_movements").WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := db.RecordStockMovement(context.Background(), StockMovement{
		EventID:       "e1",
		OrderID:       "o1",
		ProductID:     1,
		QuantityDelta: -2,
		NewStock:      8,
	})
	if err != nil {
		t.Fatalf("RecordStockMovement error: %v", err)
	}
	if !inserted {
		t.Fatalf("fresh movement must report inserted")
	}
}

func TestRecordStockMovement_Redelivery(t *testing.T) {
	db, mock := newMockDB(t)
	// ON CONFLICT (event_id) DO NOTHING: zero rows, no error
	mock.ExpectExec("INSERT INTO stock_movements").WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := db.RecordStockMovement(context.Background(), StockMovement{EventID: "e1", OrderID: "o1"})
	if err != nil {
		t.Fatalf("RecordStockMovement error: %v", err)
	}
	if inserted {
		t.Fatalf("redelivered movement must not report inserted")
	}
}
