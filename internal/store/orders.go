package store

import (
	"database/sql"
	"fmt"

	"github.com/GisSunTech/mini-shop-full/internal/models"
)

// CreateOrder persists one pending order plus all of its lines in a single
// transaction: either the whole checkout becomes visible or none of it does.
// The caller supplies lines with the price snapshot already taken.
func (s *Store) CreateOrder(userID int, lines []models.OrderItem) (int, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO orders (user_id, status, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`, userID, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, line := range lines {
		_, err := tx.Exec(
			`INSERT INTO order_items (order_id, item_id, quantity, price_each) VALUES (?, ?, ?, ?)`,
			orderID, line.ItemID, line.Quantity, line.PriceEach.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert order line for item %d: %w", line.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(orderID), nil
}

// GetAllOrders returns every order newest-first, with the owning user's
// email and the full set of snapshot lines attached.
func (s *Store) GetAllOrders() ([]models.Order, error) {
	query := `
		SELECT o.id, o.user_id, u.email, o.status, o.created_at
		FROM orders o
		JOIN users u ON o.user_id = u.id
		ORDER BY o.created_at DESC, o.id DESC
	`
	rows, err := s.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	index := make(map[int]int) // order id -> slice position
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserEmail, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	lineRows, err := s.DB.Query(`
		SELECT oi.id, oi.order_id, oi.item_id, COALESCE(i.title, '(deleted item)'), oi.quantity, oi.price_each
		FROM order_items oi
		LEFT JOIN items i ON oi.item_id = i.id
		ORDER BY oi.order_id, oi.id
	`)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var l models.OrderItem
		var price string
		if err := lineRows.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.ItemTitle, &l.Quantity, &price); err != nil {
			return nil, err
		}
		if l.PriceEach, err = parsePrice(price); err != nil {
			return nil, err
		}
		if pos, ok := index[l.OrderID]; ok {
			orders[pos].Lines = append(orders[pos].Lines, l)
		}
	}
	return orders, lineRows.Err()
}

// GetOrderByID returns nil when the order does not exist.
func (s *Store) GetOrderByID(id int) (*models.Order, error) {
	query := `SELECT id, user_id, status, created_at FROM orders WHERE id = ?`
	var o models.Order
	err := s.DB.QueryRow(query, id).Scan(&o.ID, &o.UserID, &o.Status, &o.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (s *Store) UpdateOrderStatus(id int, status string) error {
	query := `UPDATE orders SET status = ? WHERE id = ?`
	_, err := s.DB.Exec(query, status, id)
	return err
}
