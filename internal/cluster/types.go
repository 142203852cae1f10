package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SourceRankHeader carries the sender's rank on result messages.
const SourceRankHeader = "X-Source-Rank"

// WorkerInfo describes a worker process that has joined the group.
type WorkerInfo struct {
	Rank int    `json:"rank"`
	Addr string `json:"addr"`
}

// RegisterRequest is sent by a worker to the coordinator's /register endpoint.
type RegisterRequest struct {
	Worker WorkerInfo `json:"worker"`
}

// ReduceRequest carries one rank's contribution to a sum reduction.
type ReduceRequest struct {
	Rank  int    `json:"rank"`
	Value uint64 `json:"value"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PostBytes sends body as application/octet-stream, tagging it with the
// sender's rank.
func PostBytes(ctx context.Context, url string, rank int, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(SourceRankHeader, strconv.Itoa(rank))
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return nil
}
