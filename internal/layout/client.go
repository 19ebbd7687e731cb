package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// apiVersion pins the layout analysis REST contract.
	apiVersion = "2024-11-30"

	// modelID selects the prebuilt layout model (paragraph roles + figures).
	modelID = "prebuilt-layout"
)

// Client calls a Document-Intelligence-compatible layout analysis service.
// Analysis is asynchronous: one POST submits the document, then the
// operation URL is polled until the result is ready.
type Client struct {
	endpoint string
	key      string
	http     *http.Client
}

// NewClient creates a layout client from the DOCINTEL_ENDPOINT and
// DOCINTEL_KEY environment variables.
func NewClient() (*Client, error) {
	endpoint := os.Getenv("DOCINTEL_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("DOCINTEL_ENDPOINT environment variable not set")
	}
	key := os.Getenv("DOCINTEL_KEY")
	if key == "" {
		return nil, fmt.Errorf("DOCINTEL_KEY environment variable not set")
	}
	return &Client{
		endpoint: endpoint,
		key:      key,
		http:     &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// AnalyzeResult is the layout analysis payload consumed by the extractor.
type AnalyzeResult struct {
	Content    string      `json:"content"`
	Paragraphs []Paragraph `json:"paragraphs"`
	Figures    []Figure    `json:"figures"`
}

// Paragraph is a structural text block with an optional role tag.
type Paragraph struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Figure is a detected visual region. The first bounding region carries
// the page number and the flat polygon (four x,y pairs in inches).
type Figure struct {
	BoundingRegions []BoundingRegion `json:"boundingRegions"`
	Caption         *Caption         `json:"caption"`
}

// BoundingRegion ties a polygon to a 1-based page number.
type BoundingRegion struct {
	PageNumber int       `json:"pageNumber"`
	Polygon    []float64 `json:"polygon"`
}

// Caption is the text the provider associated with a figure.
type Caption struct {
	Content string `json:"content"`
}

// analyzeOperation is the polled envelope around AnalyzeResult.
type analyzeOperation struct {
	Status        string         `json:"status"`
	Error         *operationErr  `json:"error"`
	AnalyzeResult *AnalyzeResult `json:"analyzeResult"`
}

type operationErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Analyze submits document bytes for layout analysis and polls until the
// operation completes. Polling uses exponential backoff capped well below
// the provider's operation retention window.
func (c *Client) Analyze(ctx context.Context, document []byte) (*AnalyzeResult, error) {
	opURL, err := c.submit(ctx, document)
	if err != nil {
		return nil, err
	}
	return c.poll(ctx, opURL)
}

// submit posts the raw document and returns the operation URL to poll.
func (c *Client) submit(ctx context.Context, document []byte) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.endpoint, modelID, apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit analysis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("analysis rejected with status %d: %s", resp.StatusCode, body)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("analysis response missing Operation-Location header")
	}
	return opURL, nil
}

// poll fetches the operation until it reports succeeded or failed.
func (c *Client) poll(ctx context.Context, opURL string) (*AnalyzeResult, error) {
	var result *AnalyzeResult

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build poll request: %w", err))
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("poll analysis: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("poll returned status %d: %s", resp.StatusCode, body)
		}

		var op analyzeOperation
		if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
			return backoff.Permanent(fmt.Errorf("decode operation: %w", err))
		}

		switch op.Status {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return backoff.Permanent(fmt.Errorf("operation succeeded without a result"))
			}
			result = op.AnalyzeResult
			return nil
		case "failed":
			msg := "unknown error"
			if op.Error != nil {
				msg = fmt.Sprintf("%s: %s", op.Error.Code, op.Error.Message)
			}
			return backoff.Permanent(fmt.Errorf("analysis failed: %s", msg))
		default:
			// notStarted / running, keep polling
			return fmt.Errorf("analysis still %s", op.Status)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 5 * time.Minute

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}
