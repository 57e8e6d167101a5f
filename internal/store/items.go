package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GisSunTech/mini-shop-full/internal/models"
)

// Prices live in TEXT columns as canonical decimal strings so monetary
// values never pass through floating point.

func (s *Store) CreateItem(item *models.Item) error {
	query := `
		INSERT INTO items (title, price, description, video_filename, file_filename, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	res, err := s.DB.Exec(query, item.Title, item.Price.String(), item.Description, item.VideoFilename, item.FileFilename)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = int(id)
	return nil
}

// SearchItems returns all items newest-first, optionally filtered by a
// case-insensitive substring match on the title.
func (s *Store) SearchItems(q string) ([]models.Item, error) {
	query := `SELECT id, title, price, COALESCE(description, ''), COALESCE(video_filename, ''), COALESCE(file_filename, ''), created_at
	          FROM items`
	var args []any
	if q != "" {
		query += ` WHERE instr(lower(title), lower(?)) > 0`
		args = append(args, q)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *Store) GetItemByID(id int) (*models.Item, error) {
	query := `SELECT id, title, price, COALESCE(description, ''), COALESCE(video_filename, ''), COALESCE(file_filename, ''), created_at
	          FROM items WHERE id = ?`
	row := s.DB.QueryRow(query, id)

	var i models.Item
	var price string
	if err := row.Scan(&i.ID, &i.Title, &price, &i.Description, &i.VideoFilename, &i.FileFilename, &i.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p, err := parsePrice(price)
	if err != nil {
		return nil, err
	}
	i.Price = p
	return &i, nil
}

// GetItemsByIDs resolves the given ids; missing ids are silently absent
// from the result. Used by the cart view and checkout.
func (s *Store) GetItemsByIDs(ids []int) ([]models.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`SELECT id, title, price, COALESCE(description, ''), COALESCE(video_filename, ''), COALESCE(file_filename, ''), created_at
	          FROM items WHERE id IN (%s) ORDER BY created_at DESC, id DESC`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *Store) UpdateItem(item *models.Item) error {
	query := `
		UPDATE items
		SET title = ?, price = ?, description = ?, video_filename = ?, file_filename = ?
		WHERE id = ?
	`
	_, err := s.DB.Exec(query, item.Title, item.Price.String(), item.Description, item.VideoFilename, item.FileFilename, item.ID)
	return err
}

// DeleteItem removes the row. Existing order lines keep their item_id and
// price snapshot; the admin order view renders them as "(deleted item)".
func (s *Store) DeleteItem(id int) error {
	query := `DELETE FROM items WHERE id = ?`
	_, err := s.DB.Exec(query, id)
	return err
}

func scanItems(rows *sql.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		var i models.Item
		var price string
		if err := rows.Scan(&i.ID, &i.Title, &price, &i.Description, &i.VideoFilename, &i.FileFilename, &i.CreatedAt); err != nil {
			return nil, err
		}
		p, err := parsePrice(price)
		if err != nil {
			return nil, err
		}
		i.Price = p
		items = append(items, i)
	}
	return items, rows.Err()
}

func parsePrice(raw string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed price %q in database: %w", raw, err)
	}
	return p, nil
}
