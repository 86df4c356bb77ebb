package model

type BookCount struct {
	BookID    int64  `json:"book_id"`
	Name      string `json:"name"`
	LoanCount int64  `json:"loan_count"`
}

type UserCount struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	LoanCount int64  `json:"loan_count"`
}

// Report is the admin dashboard snapshot.
type Report struct {
	TotalBooks      int64       `json:"total_books"`
	TotalUsers      int64       `json:"total_users"`
	TotalCategories int64       `json:"total_categories"`
	BooksAvailable  int64       `json:"books_available"`
	BooksLoaned     int64       `json:"books_loaned"`
	TopBooks        []BookCount `json:"top_books"`
	TopUsers        []UserCount `json:"top_users"`
	LoansToday      int64       `json:"loans_today"`
}
