package book

type CreateBookReq struct {
	Name        string `json:"name" validate:"omitempty,min=1"`
	Author      string `json:"author"`
	Publisher   string `json:"publisher"`
	Year        int    `json:"year" validate:"omitempty,gt=0"`
	Category    string `json:"category" validate:"required"`
	ISBN        string `json:"isbn"`
	Pages       int    `json:"pages" validate:"omitempty,gt=0"`
	Description string `json:"description"`
}
