package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var ErrUnavailable = errors.New("upstream unavailable")

// Client is the metered property-data API. Every call here costs a quota
// slot; the gateway service reserves before calling.
type Client interface {
	FetchProperty(ctx context.Context, fullAddress string) (json.RawMessage, error)
	FetchRentEstimate(ctx context.Context, fullAddress, propertyType string, bedrooms, bathrooms float64, squareFootage int) (json.RawMessage, error)
}

// RentCastClient talks to the RentCast REST API with an API-key header and a
// micro circuit breaker in front of it.
type RentCastClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	br      *MicroBreaker
}

func NewRentCastClient(baseURL, apiKey string, timeoutMs, failThreshold, openForMs int) *RentCastClient {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &RentCastClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

var _ Client = (*RentCastClient)(nil)

func (c *RentCastClient) FetchProperty(ctx context.Context, fullAddress string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("address", fullAddress)

	return c.get(ctx, "/properties", q)
}

func (c *RentCastClient) FetchRentEstimate(ctx context.Context, fullAddress, propertyType string, bedrooms, bathrooms float64, squareFootage int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("address", fullAddress)
	q.Set("propertyType", propertyType)
	q.Set("bedrooms", strconv.FormatFloat(bedrooms, 'f', -1, 64))
	q.Set("bathrooms", strconv.FormatFloat(bathrooms, 'f', -1, 64))
	q.Set("squareFootage", strconv.Itoa(squareFootage))

	return c.get(ctx, "/avm/rent/long-term", q)
}

func (c *RentCastClient) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	if !c.br.TryAcquire() {
		return nil, ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		c.br.OnFailure()
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		c.br.OnFailure()
		return nil, err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		c.br.OnFailure()
		return nil, fmt.Errorf("upstream path=%s status=%d", path, res.StatusCode)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		c.br.OnFailure()
		return nil, err
	}

	var payload json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.br.OnFailure()
		return nil, fmt.Errorf("parse upstream response: %w", err)
	}

	c.br.OnSuccess()

	return payload, nil
}
