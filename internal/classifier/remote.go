package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrModelUnavailable возвращается, если удалённая модель не ответила корректно.
var ErrModelUnavailable = errors.New("intent model unavailable")

// RemoteModel инкапсулирует HTTP-взаимодействие с внешним сервисом классификации.
type RemoteModel struct {
	baseURL    string
	httpClient *http.Client
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Scores []Score `json:"scores"`
}

const (
	remoteTimeout  = 5 * time.Second
	remoteRetryMax = 2
)

// NewRemoteModel создаёт HTTP-клиент сервиса классификации по указанному адресу.
// Ошибки соединения и ответы 5xx повторяются до remoteRetryMax раз.
func NewRemoteModel(baseURL string) *RemoteModel {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = remoteRetryMax
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 200 * time.Millisecond
	rc.HTTPClient.Timeout = remoteTimeout
	rc.Logger = nil

	return &RemoteModel{
		baseURL:    base,
		httpClient: rc.StandardClient(),
	}
}

// Probabilities запрашивает у сервиса распределение вероятностей по меткам для текста.
func (c *RemoteModel) Probabilities(ctx context.Context, text string) ([]Score, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: client not configured", ErrModelUnavailable)
	}

	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrModelUnavailable, err)
	}

	return result.Scores, nil
}
