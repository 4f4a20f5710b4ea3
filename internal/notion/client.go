package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/hyperifyio/notionposts/internal/fetch"
)

// DefaultBaseURL is the record API root.
const DefaultBaseURL = "https://www.notion.so/api/v3"

// ErrNotFound is returned when the requested page is absent from the graph.
var ErrNotFound = errors.New("page not found")

// Client fetches record graphs. The zero value is usable and talks to
// DefaultBaseURL without authentication.
type Client struct {
	API     *fetch.Client
	BaseURL string
	// TimeZone is sent with collection queries; defaults to UTC.
	TimeZone string
	// MaxChunks bounds how many loadPageChunk calls one page may take.
	MaxChunks int
	// CollectionLimit caps the rows requested per collection view.
	CollectionLimit int
}

// NewCookieJar returns a jar holding the token_v2 session cookie for baseURL.
// An empty token yields a jar without cookies.
func NewCookieJar(baseURL, token string) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return jar, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, []*http.Cookie{{
		Name:  "token_v2",
		Value: token,
		Path:  "/",
	}})
	return jar, nil
}

type cursorEntry struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	Index int    `json:"index"`
}

type cursor struct {
	Stack [][]cursorEntry `json:"stack"`
}

type loadPageChunkRequest struct {
	PageID          string `json:"pageId"`
	Limit           int    `json:"limit"`
	Cursor          cursor `json:"cursor"`
	ChunkNumber     int    `json:"chunkNumber"`
	VerticalColumns bool   `json:"verticalColumns"`
}

type loadPageChunkResponse struct {
	RecordMap RecordMap `json:"recordMap"`
	Cursor    cursor    `json:"cursor"`
}

type pointer struct {
	ID      string `json:"id"`
	SpaceID string `json:"spaceId,omitempty"`
}

type queryCollectionRequest struct {
	Collection     pointer `json:"collection"`
	CollectionView pointer `json:"collectionView"`
	Loader         loader  `json:"loader"`
}

type loader struct {
	Type         string             `json:"type"`
	Reducers     map[string]reducer `json:"reducers"`
	SearchQuery  string             `json:"searchQuery"`
	UserTimeZone string             `json:"userTimeZone"`
}

type reducer struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

type queryCollectionResponse struct {
	Result struct {
		Type           string                `json:"type"`
		ReducerResults CollectionQueryResult `json:"reducerResults"`
	} `json:"result"`
	RecordMap RecordMap `json:"recordMap"`
}

func (c *Client) api() *fetch.Client {
	if c.API != nil {
		return c.API
	}
	return &fetch.Client{MaxAttempts: 1}
}

func (c *Client) endpoint(name string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/" + name
}

// GetPage loads the record graph of pageID, following chunk cursors, and
// resolves the rows of every collection view embedded in the page into
// CollectionQuery. A failing collection query is logged and skipped.
func (c *Client) GetPage(ctx context.Context, pageID string) (*RecordMap, error) {
	id, err := ParsePageID(pageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, pageID)
	}
	maxChunks := c.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 10
	}

	rm := &RecordMap{}
	cur := cursor{Stack: [][]cursorEntry{}}
	for chunk := 0; chunk < maxChunks; chunk++ {
		var resp loadPageChunkResponse
		req := loadPageChunkRequest{PageID: id, Limit: 100, Cursor: cur, ChunkNumber: chunk}
		if err := c.api().PostJSON(ctx, c.endpoint("loadPageChunk"), req, &resp); err != nil {
			return nil, fmt.Errorf("load page chunk %d of %s: %w", chunk, id, err)
		}
		rm.Merge(&resp.RecordMap)
		if len(resp.Cursor.Stack) == 0 {
			break
		}
		cur = resp.Cursor
	}
	if _, ok := rm.BlockValue(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	for _, b := range rm.CollectionViewBlocks() {
		if b.CollectionID == "" {
			continue
		}
		for _, viewID := range b.ViewIDs {
			res, err := c.queryCollection(ctx, b.CollectionID, viewID, b.SpaceID)
			if err != nil {
				log.Warn().Err(err).Str("collection", b.CollectionID).Str("view", viewID).Msg("collection query failed")
				continue
			}
			rm.Merge(&res.RecordMap)
			rm.SetCollectionQuery(b.CollectionID, viewID, res.Result.ReducerResults)
		}
	}
	return rm, nil
}

func (c *Client) queryCollection(ctx context.Context, collectionID, viewID, spaceID string) (*queryCollectionResponse, error) {
	limit := c.CollectionLimit
	if limit <= 0 {
		limit = 999
	}
	tz := c.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	req := queryCollectionRequest{
		Collection:     pointer{ID: collectionID, SpaceID: spaceID},
		CollectionView: pointer{ID: viewID, SpaceID: spaceID},
		Loader: loader{
			Type: "reducer",
			Reducers: map[string]reducer{
				"collection_group_results": {Type: "results", Limit: limit},
			},
			UserTimeZone: tz,
		},
	}
	var resp queryCollectionResponse
	if err := c.api().PostJSON(ctx, c.endpoint("queryCollection"), req, &resp); err != nil {
		return nil, fmt.Errorf("query collection %s view %s: %w", collectionID, viewID, err)
	}
	return &resp, nil
}
