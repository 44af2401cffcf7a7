package export

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

// AirtableSink creates rows through the Airtable REST API.
type AirtableSink struct {
	baseURL    string
	baseID     string
	table      string
	apiKey     string
	httpClient *http.Client
}

func NewAirtableSink(baseURL, baseID, table, apiKey string) *AirtableSink {
	if baseURL == "" {
		baseURL = "https://api.airtable.com/v0"
	}
	return &AirtableSink{
		baseURL:    strings.TrimRight(baseURL, "/"),
		baseID:     baseID,
		table:      table,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *AirtableSink) Name() string {
	return "airtable"
}

type airtableCreate struct {
	Records []airtableRecord `json:"records"`
}

type airtableRecord struct {
	Fields Record `json:"fields"`
}

func (a *AirtableSink) WriteBatch(ctx context.Context, _ string, records []Record) error {
	payload := airtableCreate{Records: make([]airtableRecord, len(records))}
	for i, r := range records {
		payload.Records[i] = airtableRecord{Fields: r}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := a.baseURL + "/" + url.PathEscape(a.baseID) + "/" + url.PathEscape(a.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("airtable request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("airtable error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
