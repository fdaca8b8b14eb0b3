// Package cvapi is a client for the CloudVision compute-job resource APIs
// (JobConfig and NodeConfig).
package cvapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	jobConfigEndpoint  = "/api/resources/computejob/v1/JobConfig"
	nodeConfigEndpoint = "/api/resources/computejob/v1/NodeConfig"

	jobConfigTimeout  = 30 * time.Second
	nodeConfigTimeout = 10 * time.Second
)

// DefaultHTTPClient skips TLS verification: on-prem CloudVision deployments
// commonly serve self-signed certificates.
var DefaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	},
}

// Client talks to the CloudVision REST API with bearer-token auth. Requests
// that fail (transport error or non-2xx status) are logged with their
// payload and returned as errors; the client never retries.
type Client struct {
	Server string // API server host, e.g. "www.arista.io"
	Token  string
	HTTP   *http.Client // defaults to DefaultHTTPClient
	Logger *slog.Logger
}

// SendJobConfig validates and POSTs a JobConfig resource.
func (c *Client) SendJobConfig(ctx context.Context, job *JobConfig) error {
	if err := job.Validate(); err != nil {
		c.Logger.Error("invalid job config", "err", err.Error())
		return fmt.Errorf("validating job config: %w", err)
	}

	var resources slog.Attr
	if job.Nodes != nil {
		resources = slog.Int("nodes", len(job.Nodes.Values))
	} else {
		resources = slog.Int("interfaces", len(job.Interfaces.Values))
	}
	c.Logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"sending job config",
		slog.String("key", job.Key.ID),
		slog.String("name", job.Name),
		slog.String("state", string(job.State)),
		slog.String("startTime", job.StartTime),
		slog.String("endTime", job.EndTime),
		resources,
	)

	return c.send(ctx, jobConfigEndpoint, job, jobConfigTimeout)
}

// SendNodeConfig POSTs a NodeConfig resource, upserting the node's
// interface inventory.
func (c *Client) SendNodeConfig(ctx context.Context, node *NodeConfig) error {
	c.Logger.Info(
		"sending node config",
		"node", node.Key.ID,
		"interfaces", len(node.DataInterfaces.Values),
	)
	return c.send(ctx, nodeConfigEndpoint, node, nodeConfigTimeout)
}

// DeleteNodeConfig removes a node's NodeConfig resource.
func (c *Client) DeleteNodeConfig(ctx context.Context, nodeName string) error {
	c.Logger.Info("deleting node config", "node", nodeName)

	requestID := uuid.NewString()
	endpoint := fmt.Sprintf(
		"%s?key.id=%s",
		nodeConfigEndpoint,
		url.QueryEscape(nodeName),
	)

	ctx, cancel := context.WithTimeout(ctx, nodeConfigTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodDelete,
		"https://"+c.Server+endpoint,
		nil,
	)
	if err != nil {
		return fmt.Errorf("building node config delete request: %w", err)
	}
	c.authorize(req)

	if err := c.do(req, requestID, nil); err != nil {
		return fmt.Errorf("deleting node config for %s: %w", nodeName, err)
	}
	return nil
}

func (c *Client) send(
	ctx context.Context,
	endpoint string,
	payload any,
	timeout time.Duration,
) error {
	requestID := uuid.NewString()
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		"https://"+c.Server+endpoint,
		bytes.NewReader(data),
	)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.authorize(req)

	if err := c.do(req, requestID, data); err != nil {
		return fmt.Errorf("POST %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, requestID string, payload []byte) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = DefaultHTTPClient
	}

	c.Logger.Debug(
		"api request",
		"requestID", requestID,
		"method", req.Method,
		"url", req.URL.String(),
		"payload", string(payload),
	)

	rsp, err := httpClient.Do(req)
	if err != nil {
		c.Logger.Error(
			"api request failed",
			"requestID", requestID,
			"err", err.Error(),
			"payload", string(payload),
		)
		return err
	}
	defer rsp.Body.Close()

	body, _ := io.ReadAll(rsp.Body)
	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		c.Logger.Error(
			"api request rejected",
			"requestID", requestID,
			"status", rsp.StatusCode,
			"body", string(body),
			"payload", string(payload),
		)
		return fmt.Errorf("unexpected status %d", rsp.StatusCode)
	}

	c.Logger.Debug(
		"api response",
		"requestID", requestID,
		"status", rsp.StatusCode,
		"body", string(body),
	)
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
