package models

import "time"

type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"company_name"`
	CreatedAt time.Time `json:"created_at"`
}

type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"collection_name"`
	CreatedAt time.Time `json:"created_at"`
}

// CollectionPage is one page of a collection's members along with the
// collection's full member count.
type CollectionPage struct {
	Collection
	Companies []*Company `json:"companies"`
	Total     int        `json:"total"`
}
