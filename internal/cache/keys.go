package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/birbparty/metabase-go/models"
)

// Key prefixes. Keys of the query namespace start with QueryPrefix; every
// other key belongs to the metadata namespace.
const (
	QueryPrefix = "query:"

	cardPrefix       = "card"
	collectionPrefix = "collection"
	dashboardPrefix  = "dashboard"
	databasePrefix   = "database"

	// ListSeparator joins a kind and its list hash, e.g. card:list:<hash>
	ListSeparator = ":list:"
)

// Namespace separates long-lived metadata from query results.
type Namespace string

const (
	NamespaceMetadata Namespace = "metadata"
	NamespaceQuery    Namespace = "query"
)

// NamespaceOf returns the namespace a key belongs to.
func NamespaceOf(key string) Namespace {
	if strings.HasPrefix(key, QueryPrefix) {
		return NamespaceQuery
	}
	return NamespaceMetadata
}

func CardKey(id models.CardID) string             { return cardPrefix + "/" + id.String() }
func CollectionKey(id models.CollectionID) string { return collectionPrefix + "/" + id.String() }
func DashboardKey(id models.DashboardID) string   { return dashboardPrefix + "/" + id.String() }
func DatabaseKey(id models.DatabaseID) string     { return databasePrefix + "/" + id.String() }

// CollectionItemsKey holds the children listing of a collection.
func CollectionItemsKey(id models.CollectionID) string {
	return CollectionKey(id) + "/items"
}

// DatabaseMetadataKey holds the tables and fields of a database.
func DatabaseMetadataKey(id models.DatabaseID) string {
	return DatabaseKey(id) + "/metadata"
}

// CardListKey, CollectionListKey, DashboardListKey and DatabaseListKey key a
// listing by a hash of its encoded parameters.
func CardListKey(params string) string       { return ListPrefix(cardPrefix) + hashOf(params) }
func CollectionListKey(params string) string { return ListPrefix(collectionPrefix) + hashOf(params) }
func DashboardListKey(params string) string  { return ListPrefix(dashboardPrefix) + hashOf(params) }
func DatabaseListKey(params string) string   { return ListPrefix(databasePrefix) + hashOf(params) }

// ListPrefix is the prefix shared by every listing of kind.
func ListPrefix(kind string) string {
	return kind + ListSeparator
}

// Kind names accepted by ListPrefix.
const (
	KindCard       = cardPrefix
	KindCollection = collectionPrefix
	KindDashboard  = dashboardPrefix
	KindDatabase   = databasePrefix
)

// QueryKey keys a query result by the hash of its canonical payload.
func QueryKey(payload []byte) string {
	sum := sha256.Sum256(payload)
	return QueryPrefix + hex.EncodeToString(sum[:])
}

// CardQueryPrefix is shared by every cached result of a card, so edits to the
// card can drop them.
func CardQueryPrefix(id models.CardID) string {
	return QueryPrefix + cardPrefix + "/" + id.String() + "/"
}

// CardQueryKey keys a card result by the hash of its parameters.
func CardQueryKey(id models.CardID, params []byte) string {
	sum := sha256.Sum256(params)
	return CardQueryPrefix(id) + hex.EncodeToString(sum[:])
}

func hashOf(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
