package openlibrary

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"librarium/util/httpx"
)

type httpRepo struct {
	client *http.Client
}

func NewHTTP() Repo { return &httpRepo{client: httpx.Client()} }

func (r *httpRepo) ByISBN(isbn string) (*BookMeta, error) {
	u := "https://openlibrary.org/isbn/" + url.PathEscape(isbn) + ".json"
	resp, err := r.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New("openlibrary: isbn not found")
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openlibrary lookup failed: %s", resp.Status)
	}

	var out struct {
		Title         string `json:"title"`
		NumberOfPages int    `json:"number_of_pages"`
		PublishDate   string `json:"publish_date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Title == "" {
		return nil, errors.New("openlibrary: empty title")
	}

	return &BookMeta{Title: out.Title, Pages: out.NumberOfPages, PublishDate: out.PublishDate}, nil
}
