package submit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tokenboard/tokenboard/cli/internal/config"
	"github.com/tokenboard/tokenboard/internal/model"
)

// Client sends usage snapshots to the server
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
}

// Metrics mirrors the server's accepted-submission summary
type Metrics struct {
	TotalTokens int64           `json:"totalTokens"`
	TotalCost   float64         `json:"totalCost"`
	DateRange   model.DateRange `json:"dateRange"`
	ActiveDays  int             `json:"activeDays"`
	Sources     []string        `json:"sources"`
}

// Response is the submit endpoint's success body
type Response struct {
	Success      bool     `json:"success"`
	SubmissionID string   `json:"submissionId"`
	Username     string   `json:"username"`
	Fingerprint  string   `json:"fingerprint"`
	Metrics      Metrics  `json:"metrics"`
	Mode         string   `json:"mode"`
	Warnings     []string `json:"warnings,omitempty"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// NewClient creates a new submit client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit sends the full usage snapshot to the server
func (c *Client) Submit(data *model.ContributionData) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/submit", c.cfg.Server)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			if len(errResp.Details) > 0 {
				return nil, fmt.Errorf("%s: %v", errResp.Error, errResp.Details)
			}
			return nil, fmt.Errorf("%s", errResp.Error)
		}
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var submitResp Response
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return nil, err
	}

	if !submitResp.Success {
		return nil, fmt.Errorf("submission rejected")
	}

	return &submitResp, nil
}
