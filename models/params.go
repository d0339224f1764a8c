package models

import (
	"net/url"
	"strconv"
)

// ListFilter narrows list endpoints the way the server's "f" parameter does.
type ListFilter string

const (
	ListAll      ListFilter = "all"
	ListMine     ListFilter = "mine"
	ListFavorite ListFilter = "fav"
	ListArchived ListFilter = "archived"
)

// ListParams are the optional filters and pagination of list operations. The
// zero value lists everything the server returns by default.
type ListParams struct {
	Filter       ListFilter
	Archived     *bool
	CollectionID *CollectionID
	Models       []string
	Limit        int
	Offset       int
}

// Values encodes the params as query-string parameters. The encoding is
// stable so it can be hashed into cache keys.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Filter != "" {
		v.Set("f", string(p.Filter))
	}
	if p.Archived != nil {
		v.Set("archived", strconv.FormatBool(*p.Archived))
	}
	if p.CollectionID != nil {
		v.Set("collection_id", p.CollectionID.String())
	}
	for _, m := range p.Models {
		v.Add("models", m)
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	return v
}

// Page applies Limit and Offset to a fully fetched slice, for endpoints that
// ignore server-side pagination.
func Page[T any](items []T, p ListParams) []T {
	if p.Offset > 0 {
		if p.Offset >= len(items) {
			return []T{}
		}
		items = items[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}
