// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package datacontainer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/tidwall/gjson"
)

// Remote account-manager functions.
const (
	remoteGetEntry        = "accounts/getDataEntry"
	remoteSetEntry        = "accounts/setDataEntry"
	remoteCreateEntry     = "accounts/createDataEntry"
	remoteEntryExists     = "accounts/dataEntryExists"
	remoteDeleteEntry     = "accounts/deleteDataEntry"
	remoteEntryKeys       = "accounts/getEntryKeys"
	remoteChildContainers = "accounts/getChildContainers"
	remoteDeleteContainer = "accounts/deleteContainer"
)

const defaultRemoteTimeout = 10 * time.Second

// maxRemoteResponse caps how much of a response body is read.
const maxRemoteResponse = 16 << 20

// RemoteOption configures a RemoteDriver.
type RemoteOption func(*RemoteDriver)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(d *RemoteDriver) {
		d.client = c
	}
}

// WithBearerToken sets the token sent in the Authorization header.
func WithBearerToken(token string) RemoteOption {
	return func(d *RemoteDriver) {
		d.token = token
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) RemoteOption {
	return func(d *RemoteDriver) {
		d.timeout = timeout
	}
}

// RemoteDriver proxies every operation as a POST to a remote account
// manager. Each call is attempted once.
type RemoteDriver struct {
	baseURL string
	client  *http.Client
	token   string
	timeout time.Duration
}

type remoteRequest struct {
	Owner string          `json:"owner"`
	ID    string          `json:"id"`
	Root  string          `json:"root"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// NewRemoteDriver creates a driver for the account manager at baseURL.
func NewRemoteDriver(baseURL string, opts ...RemoteOption) *RemoteDriver {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	d := &RemoteDriver{
		baseURL: baseURL,
		client:  http.DefaultClient,
		timeout: defaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get returns the entry for key.
func (d *RemoteDriver) Get(ctx context.Context, owner Owner, container, key string) (Value, error) {
	res, err := d.call(ctx, remoteGetEntry, owner, container, key, nil)
	if err != nil {
		return Absent(), err
	}
	if !res.Get("success").Bool() {
		return Absent(), nil
	}
	entry := res.Get("entryValue")
	exists := res.Get("exists")
	if exists.Exists() && !exists.Bool() {
		return Absent(), nil
	}
	if !entry.Exists() {
		if exists.Bool() {
			return Null(), nil
		}
		return Absent(), nil
	}
	return Of(json.RawMessage(entry.Raw)), nil
}

// Set inserts or replaces the entry for key.
func (d *RemoteDriver) Set(ctx context.Context, owner Owner, container, key string, raw json.RawMessage) error {
	return d.expectSuccess(ctx, remoteSetEntry, owner, container, key, raw)
}

// Create inserts the entry for key if absent.
func (d *RemoteDriver) Create(ctx context.Context, owner Owner, container, key string, raw json.RawMessage) error {
	res, err := d.call(ctx, remoteCreateEntry, owner, container, key, raw)
	if err != nil {
		return err
	}
	if res.Get("success").Bool() {
		return nil
	}
	if res.Get("error").String() == "entry_exists" {
		return ErrEntryExists
	}
	return oops.With("function", remoteCreateEntry).Wrap(ErrRemoteFailure)
}

// Exists reports whether key has an entry.
func (d *RemoteDriver) Exists(ctx context.Context, owner Owner, container, key string) (bool, error) {
	res, err := d.call(ctx, remoteEntryExists, owner, container, key, nil)
	if err != nil {
		return false, err
	}
	return res.Get("result").Bool(), nil
}

// Delete removes the entry for key.
func (d *RemoteDriver) Delete(ctx context.Context, owner Owner, container, key string) error {
	return d.expectSuccess(ctx, remoteDeleteEntry, owner, container, key, nil)
}

// Keys lists the entry keys held directly by container.
func (d *RemoteDriver) Keys(ctx context.Context, owner Owner, container string) ([]string, error) {
	return d.list(ctx, remoteEntryKeys, owner, container)
}

// Children lists the direct child containers of container.
func (d *RemoteDriver) Children(ctx context.Context, owner Owner, container string) ([]string, error) {
	return d.list(ctx, remoteChildContainers, owner, container)
}

// DeleteContainer removes container and all its descendants.
func (d *RemoteDriver) DeleteContainer(ctx context.Context, owner Owner, container string) error {
	return d.expectSuccess(ctx, remoteDeleteContainer, owner, container, "", nil)
}

func (d *RemoteDriver) list(ctx context.Context, function string, owner Owner, container string) ([]string, error) {
	res, err := d.call(ctx, function, owner, container, "", nil)
	if err != nil {
		return nil, err
	}
	if !res.Get("success").Bool() {
		return nil, oops.With("function", function).Wrap(ErrRemoteFailure)
	}
	out := []string{}
	for _, item := range res.Get("result").Array() {
		out = append(out, item.String())
	}
	sort.Strings(out)
	return out, nil
}

func (d *RemoteDriver) expectSuccess(ctx context.Context, function string, owner Owner, container, key string, raw json.RawMessage) error {
	res, err := d.call(ctx, function, owner, container, key, raw)
	if err != nil {
		return err
	}
	if !res.Get("success").Bool() {
		return oops.With("function", function).Wrap(ErrRemoteFailure)
	}
	return nil
}

func (d *RemoteDriver) call(ctx context.Context, function string, owner Owner, container, key string, raw json.RawMessage) (gjson.Result, error) {
	body, err := json.Marshal(remoteRequest{
		Owner: string(owner.Kind),
		ID:    owner.ID,
		Root:  container,
		Key:   key,
		Value: raw,
	})
	if err != nil {
		return gjson.Result{}, oops.Code("REMOTE_REQUEST_FAILED").With("function", function).Wrap(err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+function, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, oops.Code("REMOTE_REQUEST_FAILED").With("function", function).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return gjson.Result{}, oops.Code("REMOTE_UNREACHABLE").With("function", function).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponse))
	if err != nil {
		return gjson.Result{}, oops.Code("REMOTE_READ_FAILED").With("function", function).Wrap(err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, oops.Code("REMOTE_BAD_STATUS").
			With("function", function).
			With("status", resp.StatusCode).
			Errorf("remote account manager returned %s", resp.Status)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, oops.Code("REMOTE_MALFORMED_RESPONSE").
			With("function", function).
			Errorf("response is not valid JSON")
	}
	return gjson.ParseBytes(data), nil
}

var _ Driver = (*RemoteDriver)(nil)
