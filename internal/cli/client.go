package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) EnsureUser(ctx context.Context, s Session, userID, username string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/users", s, map[string]any{
		"user_id":  userID,
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Inventory(ctx context.Context, s Session) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/inventory", s, nil, &out, "")
	return out, err
}

func (c *Client) Draw(ctx context.Context, s Session, subject, slot, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/draws", s, map[string]any{
		"subject": subject,
		"slot":    slot,
	}, &out, idem)
	return out, err
}

func (c *Client) Gift(ctx context.Context, s Session, toUserID, name, rarity string, count int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/gifts", s, map[string]any{
		"to_user_id": toUserID,
		"items": []map[string]any{
			{"name": name, "rarity": rarity, "count": count},
		},
	}, &out, "")
	return out, err
}

func (c *Client) SetCardLock(ctx context.Context, s Session, name, rarity string, locked bool) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/cards/lock", s, map[string]any{
		"name":   name,
		"rarity": rarity,
		"locked": locked,
	}, &out, "")
	return out, err
}

func (c *Client) StartTrade(ctx context.Context, s Session, toUserID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trades", s, map[string]any{
		"to_user_id": toUserID,
	}, &out, "")
	return out, err
}

func (c *Client) TradeState(ctx context.Context, s Session, tradeID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/trades/"+url.PathEscape(tradeID), s, nil, &out, "")
	return out, err
}

func (c *Client) AddOffer(ctx context.Context, s Session, tradeID, name, rarity string, count int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trades/"+url.PathEscape(tradeID)+"/offers", s, map[string]any{
		"name":   name,
		"rarity": rarity,
		"count":  count,
	}, &out, "")
	return out, err
}

func (c *Client) AcceptTrade(ctx context.Context, s Session, tradeID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trades/"+url.PathEscape(tradeID)+"/accept", s, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) RejectTrade(ctx context.Context, s Session, tradeID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trades/"+url.PathEscape(tradeID)+"/reject", s, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) Listings(ctx context.Context, s Session) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/listings", s, nil, &out, "")
	return out, err
}

func (c *Client) CreateListing(ctx context.Context, s Session, offering, wanted []map[string]any, ttl string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/listings", s, map[string]any{
		"offering": offering,
		"wanted":   wanted,
		"ttl":      ttl,
	}, &out, "")
	return out, err
}

func (c *Client) SettleListing(ctx context.Context, s Session, listingID, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/listings/"+url.PathEscape(listingID)+"/settle", s, map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) CancelListing(ctx context.Context, s Session, listingID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/listings/"+url.PathEscape(listingID)+"/cancel", s, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) PendingAttempts(ctx context.Context, s Session) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/attempts", s, nil, &out, "")
	return out, err
}

func (c *Client) StartAttempt(ctx context.Context, s Session, name, rarity string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/attempts", s, map[string]any{
		"name":   name,
		"rarity": rarity,
	}, &out, "")
	return out, err
}

func (c *Client) ClaimAttempts(ctx context.Context, s Session) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/attempts/claim", s, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) CreateEvent(ctx context.Context, s Session, subjectID string, spawnAt, endsAt time.Time) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/events", s, map[string]any{
		"subject_id": subjectID,
		"spawn_at":   spawnAt.Format(time.RFC3339),
		"ends_at":    endsAt.Format(time.RFC3339),
	}, &out, "")
	return out, err
}

func (c *Client) Event(ctx context.Context, s Session, eventID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(eventID), s, nil, &out, "")
	return out, err
}

func (c *Client) Standings(ctx context.Context, s Session, eventID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(eventID)+"/standings", s, nil, &out, "")
	return out, err
}

func (c *Client) SettleEvents(ctx context.Context, s Session) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/events/settle", s, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) Do(ctx context.Context, method, path string, s Session, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, s, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, s Session, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIToken)
	}
	if s.UserID != "" {
		req.Header.Set("X-User-ID", s.UserID)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
