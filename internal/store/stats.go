package store

import "database/sql"

// DashboardStats backs the admin landing page.
type DashboardStats struct {
	TotalItems     int
	TotalOrders    int
	PendingOrders  int
	OrdersByStatus map[string]int
}

func (s *Store) GetDashboardStats() (*DashboardStats, error) {
	stats := &DashboardStats{
		OrdersByStatus: make(map[string]int),
	}

	err := s.DB.QueryRow("SELECT COUNT(*) FROM items").Scan(&stats.TotalItems)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	rows, err := s.DB.Query("SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.OrdersByStatus[status] = count
		stats.TotalOrders += count
	}
	stats.PendingOrders = stats.OrdersByStatus["pending"]

	return stats, rows.Err()
}
