// Package models holds the entities exchanged with a Metabase instance:
// identifiers, users, sessions, collections, cards, dashboards, databases
// and query results.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MetabaseID is a generic entity identifier.
type MetabaseID int64

// Entity identifiers. Each encodes as a bare JSON integer.
type (
	CardID      int64
	DashboardID int64
	DatabaseID  int64
	UserID      int64
	TableID     int64
	FieldID     int64
)

// CollectionID identifies a collection. The root collection has no numeric id
// on the server and is addressed by the literal "root"; RootCollectionID is
// that distinguished value.
type CollectionID int64

// RootCollectionID is the root of the collection tree.
const RootCollectionID CollectionID = 0

func (id CardID) String() string      { return strconv.FormatInt(int64(id), 10) }
func (id DashboardID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id DatabaseID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id UserID) String() string      { return strconv.FormatInt(int64(id), 10) }
func (id TableID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id FieldID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id MetabaseID) String() string  { return strconv.FormatInt(int64(id), 10) }

// IsRoot reports whether id is the root collection.
func (id CollectionID) IsRoot() bool { return id == RootCollectionID }

// String returns the path segment used to address the collection.
func (id CollectionID) String() string {
	if id.IsRoot() {
		return "root"
	}
	return strconv.FormatInt(int64(id), 10)
}

// MarshalJSON encodes the root collection as "root" and every other id as a
// bare integer.
func (id CollectionID) MarshalJSON() ([]byte, error) {
	if id.IsRoot() {
		return []byte(`"root"`), nil
	}
	return []byte(strconv.FormatInt(int64(id), 10)), nil
}

// UnmarshalJSON accepts a bare integer or the string "root".
func (id *CollectionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte(`"root"`)) {
		*id = RootCollectionID
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("collection id must be an integer or \"root\": %w", err)
	}
	*id = CollectionID(n)
	return nil
}
