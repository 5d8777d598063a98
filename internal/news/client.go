package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mlindgren/feedsync/internal/fault"
	"github.com/mlindgren/feedsync/internal/model"
)

// Item query types accepted by the News API.
const (
	queryTypeFeed    = 0
	queryTypeFolder  = 1
	queryTypeStarred = 2
	queryTypeAll     = 3
)

// ItemRef addresses an article for star/unstar pushes. The server keys
// starring on (feed, guid hash), not on the item ID.
type ItemRef struct {
	FeedID   int64  `json:"feedId"`
	GUIDHash string `json:"guidHash"`
}

// Client is the remote operation set. Every method issues exactly one
// transport call.
type Client struct {
	transport Transport
}

// NewClient creates a client on top of a transport.
func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// do executes one call and classifies every failure path: transport
// faults via their band code, HTTP error statuses via the status table.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	resp, err := c.transport.Execute(ctx, method, path, query, payload)
	if err != nil {
		var tf *Fault
		if errors.As(err, &tf) {
			return nil, fault.FromTransport(tf.Code, tf.Detail)
		}
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, fault.FromTransport(fault.CodeUnknownNetwork, err.Error())
	}

	if resp.Status >= 400 {
		return nil, fault.FromStatus(resp.Status)
	}

	return resp.Body, nil
}

// Folders lists all folders.
func (c *Client) Folders(ctx context.Context) ([]model.Folder, error) {
	body, err := c.do(ctx, "GET", "/folders", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeFolders(body)
}

// CreateFolder creates a folder server-side and returns it with its
// server-assigned ID.
func (c *Client) CreateFolder(ctx context.Context, name string) (*model.Folder, error) {
	if name == "" {
		return nil, fault.Validation("validation.folder-name")
	}

	body, err := c.do(ctx, "POST", "/folders", nil,
		map[string]string{"name": name})
	if err != nil {
		return nil, err
	}

	folders, err := decodeFolders(body)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, fault.Protocol("protocol.empty-reply", "POST /folders")
	}
	return &folders[0], nil
}

// RenameFolder renames a folder server-side.
func (c *Client) RenameFolder(ctx context.Context, folderID int64, name string) error {
	if folderID <= 0 {
		return fault.Validation("validation.folder-id")
	}
	if name == "" {
		return fault.Validation("validation.folder-name")
	}

	path := "/folders/" + strconv.FormatInt(folderID, 10)
	_, err := c.do(ctx, "PUT", path, nil, map[string]string{"name": name})
	return err
}

// DeleteFolder deletes a folder server-side.
func (c *Client) DeleteFolder(ctx context.Context, folderID int64) error {
	if folderID <= 0 {
		return fault.Validation("validation.folder-id")
	}

	path := "/folders/" + strconv.FormatInt(folderID, 10)
	_, err := c.do(ctx, "DELETE", path, nil, nil)
	return err
}

// Feeds lists all feeds.
func (c *Client) Feeds(ctx context.Context) ([]model.Feed, error) {
	body, err := c.do(ctx, "GET", "/feeds", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeFeeds(body)
}

// CreateFeed subscribes to a feed server-side. folderID 0 places the
// feed outside any folder.
func (c *Client) CreateFeed(ctx context.Context, feedURL string, folderID int64) (*model.Feed, error) {
	if feedURL == "" {
		return nil, fault.Validation("validation.feed-url")
	}
	if u, err := url.Parse(feedURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fault.Validation("validation.feed-url")
	}
	if folderID < 0 {
		return nil, fault.Validation("validation.folder-id")
	}

	body, err := c.do(ctx, "POST", "/feeds", nil, map[string]interface{}{
		"url":      feedURL,
		"folderId": folderID,
	})
	if err != nil {
		return nil, err
	}

	feeds, err := decodeFeeds(body)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, fault.Protocol("protocol.empty-reply", "POST /feeds")
	}
	return &feeds[0], nil
}

// DeleteFeed unsubscribes from a feed server-side.
func (c *Client) DeleteFeed(ctx context.Context, feedID int64) error {
	if feedID <= 0 {
		return fault.Validation("validation.feed-id")
	}

	path := "/feeds/" + strconv.FormatInt(feedID, 10)
	_, err := c.do(ctx, "DELETE", path, nil, nil)
	return err
}

// MoveFeed moves a feed into another folder server-side.
func (c *Client) MoveFeed(ctx context.Context, feedID, folderID int64) error {
	if feedID <= 0 {
		return fault.Validation("validation.feed-id")
	}
	if folderID < 0 {
		return fault.Validation("validation.folder-id")
	}

	path := "/feeds/" + strconv.FormatInt(feedID, 10) + "/move"
	_, err := c.do(ctx, "PUT", path, nil,
		map[string]int64{"folderId": folderID})
	return err
}

// RenameFeed renames a feed server-side.
func (c *Client) RenameFeed(ctx context.Context, feedID int64, title string) error {
	if feedID <= 0 {
		return fault.Validation("validation.feed-id")
	}
	if title == "" {
		return fault.Validation("validation.feed-name")
	}

	path := "/feeds/" + strconv.FormatInt(feedID, 10) + "/rename"
	_, err := c.do(ctx, "PUT", path, nil,
		map[string]string{"feedTitle": title})
	return err
}

// UnreadItems lists all currently unread articles.
func (c *Client) UnreadItems(ctx context.Context) ([]model.Article, error) {
	query := url.Values{}
	query.Set("type", strconv.Itoa(queryTypeAll))
	query.Set("getRead", "false")
	query.Set("batchSize", "-1")

	body, err := c.do(ctx, "GET", "/items", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeItems(body)
}

// StarredItems lists all currently starred articles.
func (c *Client) StarredItems(ctx context.Context) ([]model.Article, error) {
	query := url.Values{}
	query.Set("type", strconv.Itoa(queryTypeStarred))
	query.Set("getRead", "true")
	query.Set("batchSize", "-1")

	body, err := c.do(ctx, "GET", "/items", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeItems(body)
}

// AllItems lists articles without a modification bound, capped at limit
// (0 lets the server choose). Used for the first-ever sync when the
// cache holds no lastModified timestamp yet.
func (c *Client) AllItems(ctx context.Context, limit int) ([]model.Article, error) {
	query := url.Values{}
	query.Set("type", strconv.Itoa(queryTypeAll))
	query.Set("getRead", "true")
	if limit > 0 {
		query.Set("batchSize", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, "GET", "/items", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeItems(body)
}

// UpdatedItems lists articles modified at or after lastModified.
func (c *Client) UpdatedItems(ctx context.Context, lastModified int64) ([]model.Article, error) {
	if lastModified < 0 {
		return nil, fault.Validation("validation.last-modified")
	}

	query := url.Values{}
	query.Set("type", strconv.Itoa(queryTypeAll))
	query.Set("lastModified", strconv.FormatInt(lastModified, 10))

	body, err := c.do(ctx, "GET", "/items/updated", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeItems(body)
}

// MarkRead marks a batch of articles read server-side.
func (c *Client) MarkRead(ctx context.Context, ids []int64) error {
	return c.markItems(ctx, "/items/read/multiple", ids)
}

// MarkUnread marks a batch of articles unread server-side.
func (c *Client) MarkUnread(ctx context.Context, ids []int64) error {
	return c.markItems(ctx, "/items/unread/multiple", ids)
}

func (c *Client) markItems(ctx context.Context, path string, ids []int64) error {
	if len(ids) == 0 {
		return fault.Validation("validation.empty-mark-batch")
	}
	for _, id := range ids {
		if id <= 0 {
			return fault.Validation("validation.article-id")
		}
	}

	_, err := c.do(ctx, "PUT", path, nil, map[string][]int64{"items": ids})
	return err
}

// Star stars a batch of articles server-side.
func (c *Client) Star(ctx context.Context, refs []ItemRef) error {
	return c.starItems(ctx, "/items/star/multiple", refs)
}

// Unstar unstars a batch of articles server-side.
func (c *Client) Unstar(ctx context.Context, refs []ItemRef) error {
	return c.starItems(ctx, "/items/unstar/multiple", refs)
}

func (c *Client) starItems(ctx context.Context, path string, refs []ItemRef) error {
	if len(refs) == 0 {
		return fault.Validation("validation.empty-star-batch")
	}
	for _, ref := range refs {
		if ref.FeedID <= 0 {
			return fault.Validation("validation.feed-id")
		}
		if ref.GUIDHash == "" {
			return fault.Validation("validation.guid-hash")
		}
	}

	_, err := c.do(ctx, "PUT", path, nil, map[string][]ItemRef{"items": refs})
	return err
}

// decodeFolders extracts the "folders" array from a reply. A reply
// without the array is a protocol breakdown, never treated as empty.
func decodeFolders(body []byte) ([]model.Folder, error) {
	var reply struct {
		Folders *[]model.Folder `json:"folders"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fault.Protocol("protocol.invalid-json", err.Error())
	}
	if reply.Folders == nil {
		return nil, fault.Protocol("protocol.no-folders-array", "")
	}
	return *reply.Folders, nil
}

// decodeFeeds extracts the "feeds" array from a reply.
func decodeFeeds(body []byte) ([]model.Feed, error) {
	var reply struct {
		Feeds *[]model.Feed `json:"feeds"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fault.Protocol("protocol.invalid-json", err.Error())
	}
	if reply.Feeds == nil {
		return nil, fault.Protocol("protocol.no-feeds-array", "")
	}
	return *reply.Feeds, nil
}

// decodeItems extracts the "items" array from a reply.
func decodeItems(body []byte) ([]model.Article, error) {
	var reply struct {
		Items *[]model.Article `json:"items"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fault.Protocol("protocol.invalid-json", err.Error())
	}
	if reply.Items == nil {
		return nil, fault.Protocol("protocol.no-items-array", "")
	}
	return *reply.Items, nil
}
