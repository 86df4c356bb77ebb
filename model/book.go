// model/book.go
package model

import "time"

type Book struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Author      string    `json:"author"`
	Publisher   string    `json:"publisher,omitempty"`
	Year        int       `json:"year,omitempty"`
	Category    string    `json:"category"`
	ISBN        string    `json:"isbn,omitempty"`
	Pages       int       `json:"pages,omitempty"`
	Description string    `json:"description,omitempty"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

// RatingSummary aggregates reviews for a book. Stars[0] counts 1-star
// reviews, Stars[4] counts 5-star reviews.
type RatingSummary struct {
	Average float64  `json:"average"`
	Total   int64    `json:"total"`
	Stars   [5]int64 `json:"stars"`
}

type BookDetail struct {
	Book
	Ratings RatingSummary `json:"ratings"`
}
