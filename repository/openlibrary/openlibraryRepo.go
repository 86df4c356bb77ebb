package openlibrary

// BookMeta is the subset of Open Library metadata used to fill in book
// records created with only an ISBN.
type BookMeta struct {
	Title       string
	Pages       int
	PublishDate string
}

type Repo interface {
	ByISBN(isbn string) (*BookMeta, error)
}
