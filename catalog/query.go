package catalog

import (
	"net/url"
	"strconv"
)

// OrderBy is a sort key understood by /api/mods.
type OrderBy string

const (
	OrderAssetCreated   OrderBy = "asset.created"
	OrderLastReleased   OrderBy = "lastreleased"
	OrderDownloads      OrderBy = "downloads"
	OrderFollows        OrderBy = "follows"
	OrderComments       OrderBy = "comments"
	OrderTrendingPoints OrderBy = "trendingpoints"
)

type Direction string

const (
	Desc Direction = "desc"
	Asc  Direction = "asc"
)

// Query filters a mod search. The zero value lists everything in the
// server's default order.
type Query struct {
	TagIDs       []int // all must match
	GameVersion  int
	GameVersions []int // any may match
	Author       int
	Text         string
	OrderBy      OrderBy
	Direction    Direction
}

func NewQuery() *Query { return &Query{} }

func (q *Query) WithTagIDs(ids ...int) *Query {
	q.TagIDs = append(q.TagIDs, ids...)
	return q
}

func (q *Query) WithGameVersion(id int) *Query {
	q.GameVersion = id
	return q
}

func (q *Query) WithGameVersions(ids ...int) *Query {
	q.GameVersions = append(q.GameVersions, ids...)
	return q
}

func (q *Query) WithAuthor(id int) *Query {
	q.Author = id
	return q
}

func (q *Query) WithText(text string) *Query {
	q.Text = text
	return q
}

func (q *Query) WithOrder(by OrderBy, dir Direction) *Query {
	q.OrderBy = by
	q.Direction = dir
	return q
}

// Values renders the query parameters.
func (q *Query) Values() url.Values {
	v := url.Values{}
	for _, id := range q.TagIDs {
		v.Add("tagids[]", strconv.Itoa(id))
	}
	if q.GameVersion != 0 {
		v.Set("gameversion", strconv.Itoa(q.GameVersion))
	}
	for _, id := range q.GameVersions {
		v.Add("gameversions[]", strconv.Itoa(id))
	}
	if q.Author != 0 {
		v.Set("author", strconv.Itoa(q.Author))
	}
	if q.Text != "" {
		v.Set("text", q.Text)
	}
	if q.OrderBy != "" {
		v.Set("orderby", string(q.OrderBy))
	}
	if q.Direction != "" {
		v.Set("orderdirection", string(q.Direction))
	}
	return v
}

// Encode returns the URL-encoded query string, keys sorted.
func (q *Query) Encode() string { return q.Values().Encode() }
