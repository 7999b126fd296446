// Package trello provides the Trello REST client used as the sync source
// and as the input of the standup report.
package trello

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chameleoncloud/taskblaster/internal/model"
)

// DefaultBaseURL is the Trello API root.
const DefaultBaseURL = "https://api.trello.com/1"

// APIError is returned when Trello answers with an unexpected status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trello %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// FieldNames names the custom fields the tool reads and writes.
type FieldNames struct {
	Category string
	Ticket   string
}

// Client talks to one Trello board.
type Client struct {
	baseURL string
	key     string
	token   string
	board   string
	fields  FieldNames
	http    *http.Client
}

// NewClient creates a client for the given board id or short link.
func NewClient(baseURL, key, token, board string, fields FieldNames) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		token:   token,
		board:   board,
		fields:  fields,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// --- wire types ---

type boardResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type customFieldResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Options []struct {
		ID    string `json:"id"`
		Value struct {
			Text string `json:"text"`
		} `json:"value"`
	} `json:"options"`
}

type memberResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

type listResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type cardResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Desc             string    `json:"desc"`
	MemberIDs        []string  `json:"idMembers"`
	DateLastActivity time.Time `json:"dateLastActivity"`
	CustomFieldItems []struct {
		DefinitionID string `json:"idCustomField"`
		ValueID      string `json:"idValue"`
		Value        struct {
			Text   string `json:"text"`
			Number string `json:"number"`
		} `json:"value"`
	} `json:"customFieldItems"`
}

type actionResponse struct {
	ID            string         `json:"id"`
	Date          string         `json:"date"`
	MemberCreator memberResponse `json:"memberCreator"`
	Data          struct {
		Text string `json:"text"`
	} `json:"data"`
}

// --- board gateway operations ---

// Board loads the board metadata: name, the category and ticket custom
// field definitions, and the member list. Custom fields the board does not
// define are left nil.
func (c *Client) Board(ctx context.Context) (*model.Board, error) {
	var b boardResponse
	path := "/boards/" + url.PathEscape(c.board)
	if err := c.do(ctx, http.MethodGet, path, url.Values{"fields": {"name"}}, nil, &b); err != nil {
		return nil, fmt.Errorf("failed to fetch board %s: %w", c.board, err)
	}

	var fields []customFieldResponse
	if err := c.do(ctx, http.MethodGet, path+"/customFields", nil, nil, &fields); err != nil {
		return nil, fmt.Errorf("failed to fetch custom fields: %w", err)
	}

	var members []memberResponse
	query := url.Values{"fields": {"username,fullName"}}
	if err := c.do(ctx, http.MethodGet, path+"/members", query, nil, &members); err != nil {
		return nil, fmt.Errorf("failed to fetch board members: %w", err)
	}

	board := &model.Board{ID: b.ID, Name: b.Name}
	for _, f := range fields {
		def := &model.CustomFieldDef{ID: f.ID, Name: f.Name}
		for _, o := range f.Options {
			def.Options = append(def.Options, model.CustomFieldOption{ID: o.ID, Value: o.Value.Text})
		}
		switch {
		case strings.EqualFold(f.Name, c.fields.Category):
			board.CategoryField = def
		case strings.EqualFold(f.Name, c.fields.Ticket):
			board.TicketField = def
		}
	}
	for _, m := range members {
		board.Members = append(board.Members, model.Member{ID: m.ID, Username: m.Username, FullName: m.FullName})
	}
	return board, nil
}

// Cards returns the cards of the board's open lists, in board order, active
// after since (zero means no cutoff). Lists named in skipLists are left out.
func (c *Client) Cards(ctx context.Context, since time.Time, skipLists ...string) ([]model.Card, error) {
	var lists []listResponse
	path := "/boards/" + url.PathEscape(c.board) + "/lists"
	query := url.Values{"filter": {"open"}, "fields": {"name"}}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &lists); err != nil {
		return nil, fmt.Errorf("failed to fetch lists: %w", err)
	}

	var open []listResponse
	for _, l := range lists {
		if !containsFold(skipLists, l.Name) {
			open = append(open, l)
		}
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("could not find any valid open lists")
	}

	var cards []model.Card
	for _, l := range open {
		var resp []cardResponse
		path := "/lists/" + url.PathEscape(l.ID) + "/cards"
		if err := c.do(ctx, http.MethodGet, path, url.Values{"customFieldItems": {"true"}}, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch cards of list %s: %w", l.Name, err)
		}
		for _, cr := range resp {
			if !since.IsZero() && !cr.DateLastActivity.After(since) {
				continue
			}
			cards = append(cards, cr.toModel(l.Name))
		}
	}
	return cards, nil
}

func (cr cardResponse) toModel(listName string) model.Card {
	card := model.Card{
		ID:          cr.ID,
		Name:        cr.Name,
		Description: cr.Desc,
		ListName:    listName,
		MemberIDs:   cr.MemberIDs,
	}
	for _, item := range cr.CustomFieldItems {
		text := item.Value.Text
		if text == "" {
			text = item.Value.Number
		}
		card.CustomFields = append(card.CustomFields, model.CustomFieldItem{
			DefinitionID: item.DefinitionID,
			Text:         text,
			OptionID:     item.ValueID,
		})
	}
	return card
}

// commentLimit is the largest page Trello serves for card actions.
const commentLimit = 1000

// Comments returns the comments of a card as Trello orders them.
func (c *Client) Comments(ctx context.Context, cardID string) ([]model.Comment, error) {
	var actions []actionResponse
	path := "/cards/" + url.PathEscape(cardID) + "/actions"
	query := url.Values{"filter": {"commentCard"}, "limit": {strconv.Itoa(commentLimit)}}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &actions); err != nil {
		return nil, fmt.Errorf("failed to fetch comments of card %s: %w", cardID, err)
	}

	comments := make([]model.Comment, 0, len(actions))
	for _, a := range actions {
		date, err := time.Parse(time.RFC3339, a.Date)
		if err != nil {
			return nil, fmt.Errorf("could not parse date of comment %s: %w", a.ID, err)
		}
		comments = append(comments, model.Comment{
			ID:             a.ID,
			AuthorUsername: a.MemberCreator.Username,
			AuthorFullName: a.MemberCreator.FullName,
			Date:           date,
			RawDate:        a.Date,
			Text:           a.Data.Text,
		})
	}
	return comments, nil
}

// SetCustomField stores a text value in a card's custom field.
func (c *Client) SetCustomField(ctx context.Context, cardID, fieldID, value string) error {
	path := "/cards/" + url.PathEscape(cardID) + "/customField/" + url.PathEscape(fieldID) + "/item"
	body := map[string]any{"value": map[string]string{"text": value}}
	if err := c.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		return fmt.Errorf("failed to set custom field on card %s: %w", cardID, err)
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if v != "" && strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.key)
	query.Set("token", c.token)
	u := c.baseURL + path + "?" + query.Encode()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("trello request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
