// Package scoring talks to the external document-scoring service.
//
// The service exposes one endpoint:
//
//	POST {base}/predict   multipart/form-data, field "file" = the PDF
//
// and answers 200 with either
//
//	{"prediction":"Accepted","confidence":"93.21%","adjusted_score":966}
//
// or, when it could not read the document, still 200 but
//
//	{"error":"Failed to extract any text from the PDF."}
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/planet-hub/internal/apperror"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Result is a successful score.
type Result struct {
	Score      float64 `json:"score"`
	Prediction string  `json:"prediction,omitempty"`
	Confidence string  `json:"confidence,omitempty"`
}

// Scorer is what the submission workflow needs; *Client implements it.
type Scorer interface {
	Score(ctx context.Context, filename string, body io.Reader) (*Result, error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

var _ Scorer = (*Client)(nil)

// NewClient builds a client for baseURL ("http://localhost:8000"). timeout
// bounds the whole request including reading the response.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// predictResponse mirrors the service's JSON. AdjustedScore is a pointer so
// a missing field is distinguishable from a real score of 0.
type predictResponse struct {
	Prediction    string   `json:"prediction"`
	Confidence    string   `json:"confidence"`
	AdjustedScore *float64 `json:"adjusted_score"`
	Error         string   `json:"error"`
}

// Score uploads the document and returns its score. Every failure, whether
// transport, status, body or a missing score, is an apperror.ErrScoring.
func (c *Client) Score(ctx context.Context, filename string, body io.Reader) (*Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, apperror.Scoring("could not prepare document for scoring", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, apperror.Scoring("could not prepare document for scoring", err)
	}
	if err := mw.Close(); err != nil {
		return nil, apperror.Scoring("could not prepare document for scoring", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &buf)
	if err != nil {
		return nil, apperror.Scoring("could not reach scoring service", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.Scoring("could not reach scoring service", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperror.Scoring("could not read scoring response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.Scoring(fmt.Sprintf("scoring service returned status %d", resp.StatusCode), nil)
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, apperror.Scoring("scoring service returned malformed JSON", err)
	}
	if pr.Error != "" {
		return nil, apperror.Scoring(pr.Error, nil)
	}
	if pr.AdjustedScore == nil {
		return nil, apperror.Scoring("scoring response has no adjusted_score", nil)
	}

	return &Result{
		Score:      *pr.AdjustedScore,
		Prediction: pr.Prediction,
		Confidence: pr.Confidence,
	}, nil
}
