// Package repository maps each BI resource kind onto its HTTP endpoints. A
// repository owns URL shapes and payload decoding and nothing else; rules and
// caching live in the service layer.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/models"
)

// Transport is the HTTP surface repositories need.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, body, out interface{}) error
	PostIdempotent(ctx context.Context, path string, body, out interface{}) error
	Put(ctx context.Context, path string, body, out interface{}) error
	Delete(ctx context.Context, path string) error
	PostBinary(ctx context.Context, path string, body interface{}) ([]byte, error)
}

type requiredChecker interface {
	CheckRequired() error
}

// getList fetches a listing that the server returns either as a bare array or
// wrapped as {"data": [...]}.
func getList[T any](ctx context.Context, t Transport, path string, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := t.Get(ctx, path, query, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw, path)
}

func decodeList[T any](raw json.RawMessage, path string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	if raw[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, apierr.Wrap(err, apierr.KindSerialization, "decode list envelope").WithRequest("GET", path, "")
		}
		raw = envelope.Data
		if len(raw) == 0 {
			return []T{}, nil
		}
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apierr.Wrap(err, apierr.KindSerialization, "decode list").WithRequest("GET", path, "")
	}
	for i := range items {
		if c, ok := any(&items[i]).(requiredChecker); ok {
			if err := c.CheckRequired(); err != nil {
				return nil, apierr.Wrap(err, apierr.KindSerialization, "decode list").WithRequest("GET", path, "")
			}
		}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// localPage strips pagination from params for endpoints that ignore it; the
// caller applies models.Page to the full result instead.
func localPage(p models.ListParams) url.Values {
	v := p.Values()
	v.Del("limit")
	v.Del("offset")
	return v
}
