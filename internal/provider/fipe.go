package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FipeClient calls the PlacaFIPE lookup API:
// GET {base}/getplacafipe/{placa}/{token}. Each successful call costs real
// money upstream, which is why the debit coordinator pre-checks the balance
// before letting a billable request through.
type FipeClient struct {
	BaseURL string
	Token   string

	HTTPClient *http.Client
}

func NewFipeClient(baseURL, token string) *FipeClient {
	return &FipeClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// fipeEnvelope is the minimal slice of the response needed to tell a
// successful report apart from an in-band refusal. codigo=1 marks success;
// anything else carries the refusal in mensagem.
type fipeEnvelope struct {
	Codigo   *int   `json:"codigo"`
	Mensagem string `json:"mensagem"`
}

// Lookup fetches the report for a plate. Returns the provider's raw JSON on
// success, *RejectedError for in-band refusals, and ErrUnavailable for
// transport failures.
func (c *FipeClient) Lookup(ctx context.Context, placa string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/getplacafipe/%s/%s",
		c.BaseURL, url.PathEscape(placa), url.PathEscape(c.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &RejectedError{Reason: fmt.Sprintf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var env fipeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", ErrUnavailable, err)
	}
	if env.Codigo != nil && *env.Codigo != 1 {
		reason := env.Mensagem
		if reason == "" {
			reason = fmt.Sprintf("codigo=%d", *env.Codigo)
		}
		return nil, &RejectedError{Reason: reason}
	}

	return json.RawMessage(body), nil
}
