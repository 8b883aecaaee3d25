// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HTTPStore is the client for the key/value sync proxy. It speaks the
// proxy's REST dialect:
//
//	GET/PUT/DELETE /v1/kv/{key}          value get/set/del (raw JSON bodies)
//	GET            /v1/kv/{key}/exists
//	GET            /v1/keys?prefix=
//	POST           /v1/kv/mget|mset
//	GET/POST       /v1/sets/{key}        smembers/sadd
//	POST           /v1/sets/{key}/remove srem
//	GET            /healthz
//
// Individual calls time out via the configured client timeout (or the
// caller's context, whichever fires first). Failures surface as plain
// errors; the retry machinery upstream decides what to do with them.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPConfig configures an HTTPStore.
type HTTPConfig struct {
	// BaseURL is the proxy root, e.g. "https://sync.example.com".
	BaseURL string

	// Timeout bounds each individual request. Default: 10s.
	Timeout time.Duration

	// Logger for request failures. Default: slog.Default().
	Logger *slog.Logger
}

// NewHTTPStore creates a client for the proxy at cfg.BaseURL.
func NewHTTPStore(cfg HTTPConfig) *HTTPStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPStore{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
			},
		},
		logger: cfg.Logger,
	}
}

func (s *HTTPStore) kvURL(key string) string {
	return s.baseURL + "/v1/kv/" + url.PathEscape(key)
}

func (s *HTTPStore) setURL(key string) string {
	return s.baseURL + "/v1/sets/" + url.PathEscape(key)
}

// do runs a request and returns the body for 2xx responses. 404 is reported
// via the notFound return, not as an error.
func (s *HTTPStore) do(ctx context.Context, method, rawURL string, body []byte) (respBody []byte, notFound bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, fmt.Errorf("proxy returned %s for %s %s", resp.Status, method, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

// Ping implements Store.
func (s *HTTPStore) Ping(ctx context.Context) error {
	_, notFound, err := s.do(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	if notFound {
		return fmt.Errorf("%w: no health endpoint", ErrUnavailable)
	}
	return nil
}

// Get implements Store.
func (s *HTTPStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, notFound, err := s.do(ctx, http.MethodGet, s.kvURL(key), nil)
	if err != nil {
		return nil, false, err
	}
	if notFound {
		return nil, false, nil
	}
	return body, true, nil
}

// Set implements Store.
func (s *HTTPStore) Set(ctx context.Context, key string, value []byte) error {
	_, _, err := s.do(ctx, http.MethodPut, s.kvURL(key), value)
	return err
}

// Del implements Store.
func (s *HTTPStore) Del(ctx context.Context, key string) error {
	_, _, err := s.do(ctx, http.MethodDelete, s.kvURL(key), nil)
	return err
}

// Exists implements Store.
func (s *HTTPStore) Exists(ctx context.Context, key string) (bool, error) {
	body, notFound, err := s.do(ctx, http.MethodGet, s.kvURL(key)+"/exists", nil)
	if err != nil {
		return false, err
	}
	if notFound {
		return false, nil
	}
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Keys implements Store.
func (s *HTTPStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	u := s.baseURL + "/v1/keys?prefix=" + url.QueryEscape(prefix)
	body, _, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// SAdd implements Store.
func (s *HTTPStore) SAdd(ctx context.Context, key string, members ...string) error {
	body, err := json.Marshal(map[string][]string{"members": members})
	if err != nil {
		return err
	}
	_, _, err = s.do(ctx, http.MethodPost, s.setURL(key), body)
	return err
}

// SMembers implements Store.
func (s *HTTPStore) SMembers(ctx context.Context, key string) ([]string, error) {
	body, notFound, err := s.do(ctx, http.MethodGet, s.setURL(key), nil)
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, nil
	}
	var out struct {
		Members []string `json:"members"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// SRem implements Store.
func (s *HTTPStore) SRem(ctx context.Context, key string, members ...string) error {
	body, err := json.Marshal(map[string][]string{"members": members})
	if err != nil {
		return err
	}
	_, _, err = s.do(ctx, http.MethodPost, s.setURL(key)+"/remove", body)
	return err
}

// MGet implements Store.
func (s *HTTPStore) MGet(ctx context.Context, keys ...string) (map[string][]byte, error) {
	body, err := json.Marshal(map[string][]string{"keys": keys})
	if err != nil {
		return nil, err
	}
	resp, _, err := s.do(ctx, http.MethodPost, s.baseURL+"/v1/kv/mget", body)
	if err != nil {
		return nil, err
	}
	var out struct {
		Values map[string]json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(out.Values))
	for k, v := range out.Values {
		if string(v) == "null" {
			continue
		}
		result[k] = []byte(v)
	}
	return result, nil
}

// MSet implements Store.
func (s *HTTPStore) MSet(ctx context.Context, pairs map[string][]byte) error {
	values := make(map[string]json.RawMessage, len(pairs))
	for k, v := range pairs {
		values[k] = json.RawMessage(v)
	}
	body, err := json.Marshal(map[string]any{"values": values})
	if err != nil {
		return err
	}
	_, _, err = s.do(ctx, http.MethodPost, s.baseURL+"/v1/kv/mset", body)
	return err
}

// PutRecord uploads a full customer record via the record-level endpoint.
func (s *HTTPStore) PutRecord(ctx context.Context, customerID string, record []byte) error {
	_, _, err := s.do(ctx, http.MethodPut, s.baseURL+"/v1/records/"+url.PathEscape(customerID), record)
	return err
}

// GetEntity fetches one reward/campaign entity via its typed endpoint.
func (s *HTTPStore) GetEntity(ctx context.Context, entityType, entityID string) ([]byte, bool, error) {
	u := s.baseURL + "/v1/entities/" + url.PathEscape(entityType) + "/" + url.PathEscape(entityID)
	body, notFound, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil || notFound {
		return nil, false, err
	}
	return body, true, nil
}

// PutEntity uploads one reward/campaign entity via its typed endpoint.
func (s *HTTPStore) PutEntity(ctx context.Context, entityType, entityID string, entity []byte) error {
	u := s.baseURL + "/v1/entities/" + url.PathEscape(entityType) + "/" + url.PathEscape(entityID)
	_, _, err := s.do(ctx, http.MethodPut, u, entity)
	return err
}

var _ Store = (*HTTPStore)(nil)
