package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// PDFClient calls the internal PDF fill service, which holds the USCIS XFA
// templates and fills them server-side. Auth is a shared bearer secret.
type PDFClient struct {
	BaseURL string
	Secret  string
	HTTP    *retryablehttp.Client
}

type fillRequest struct {
	FormType  string            `json:"form_type"`
	FieldData map[string]string `json:"field_data"`
	Flatten   bool              `json:"flatten"`
}

func NewPDFClient() *PDFClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 60 * time.Second
	client.Logger = nil

	return &PDFClient{
		BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("PDF_SERVICE_URL")), "/"),
		Secret:  strings.TrimSpace(os.Getenv("PDF_SERVICE_SECRET")),
		HTTP:    client,
	}
}

// Fill submits the field data and returns the filled PDF bytes.
func (c *PDFClient) Fill(ctx context.Context, formType string, fieldData map[string]string) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("PDF_SERVICE_URL is not configured")
	}

	body, err := json.Marshal(fillRequest{FormType: formType, FieldData: fieldData})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/fill-pdf", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Secret)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pdf service returned %d: %s", resp.StatusCode, string(snippet))
	}

	return io.ReadAll(resp.Body)
}
