package model

import "time"

type Reservation struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"book_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// HistoryEntry is the append-only record of a loan's start and end.
// Entries are never deleted; date_end is filled in on return.
type HistoryEntry struct {
	ID        int64      `json:"id"`
	BookID    int64      `json:"book_id"`
	UserID    int64      `json:"user_id"`
	DateStart time.Time  `json:"date_start"`
	DateEnd   *time.Time `json:"date_end,omitempty"`
}

type FineEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	LoanID    int64     `json:"loan_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
