package push

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"raine/internal/errors"
	"raine/internal/models"
	"raine/internal/retry"
	"raine/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

const maxResponseBytes = 64 << 10

// Client sends multicasts through the FCM HTTP v1 API, one request per
// token, with bounded concurrency. Transient per-token failures are retried
// with backoff and transport-wide failures feed a circuit breaker.
type Client struct {
	endpoint    string
	projectID   string
	accessToken string
	concurrency int
	httpClient  *http.Client
	backoff     *retry.Backoff
	breaker     *circuitbreaker.CircuitBreaker
	logger      *logrus.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a push client from the push configuration
func NewClient(cfg models.PushConfig, backoff retry.BackoffConfig, logger *logrus.Logger, opts ...Option) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("push project id is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("push endpoint is required")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if cfg.MaxAttempts > 0 {
		backoff.MaxAttempts = cfg.MaxAttempts
	}

	c := &Client{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		projectID:   cfg.ProjectID,
		accessToken: cfg.AccessToken,
		concurrency: concurrency,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		backoff:     retry.NewBackoff(backoff),
		logger:      logger,
	}
	c.breaker = circuitbreaker.New("push", uint32(cfg.BreakerFailures),
		time.Duration(cfg.BreakerTimeoutSec)*time.Second, logger,
		circuitbreaker.WithFailurePredicate(countsAgainstBreaker))

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) sendURL() string {
	return fmt.Sprintf("%s/v1/projects/%s/messages:send", c.endpoint, c.projectID)
}

// BreakerState exposes the transport breaker state for health reporting
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}

// SendEachForMulticast delivers msg to every token and reports per-token
// results in token order. The call itself fails only when the breaker is
// open, ctx ends, or no token got through because of a transport-wide error.
func (c *Client) SendEachForMulticast(ctx context.Context, msg *MulticastMessage) (*BatchResponse, error) {
	if msg == nil {
		return nil, errors.NewInvalidInputError("message", "is required")
	}
	if len(msg.Tokens) == 0 {
		return &BatchResponse{}, nil
	}
	if c.breaker.GetState() == circuitbreaker.StateOpen {
		return nil, errors.NewPushError(c.endpoint, http.StatusServiceUnavailable, circuitbreaker.ErrOpen)
	}

	responses := make([]SendResponse, len(msg.Tokens))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := c.concurrency
	if workers > len(msg.Tokens) {
		workers = len(msg.Tokens)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				responses[i] = c.sendOne(ctx, msg.Tokens[i], msg)
			}
		}()
	}

feed:
	for i := range msg.Tokens {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.NewPushError(c.endpoint, 0, err)
	}

	batch := &BatchResponse{Responses: responses}
	var firstTransport *SendError
	allTransport := true
	for _, r := range responses {
		if r.Success {
			batch.SuccessCount++
			continue
		}
		batch.FailureCount++
		if transportWide(r.Error) {
			if firstTransport == nil {
				firstTransport = r.Error
			}
		} else {
			allTransport = false
		}
	}

	if batch.SuccessCount == 0 && allTransport && firstTransport != nil {
		return nil, errors.NewPushError(c.endpoint, firstTransport.StatusCode, firstTransport)
	}

	c.logger.WithFields(logrus.Fields{
		"tokens":    len(msg.Tokens),
		"succeeded": batch.SuccessCount,
		"failed":    batch.FailureCount,
	}).Debug("Multicast completed")

	return batch, nil
}

func (c *Client) sendOne(ctx context.Context, token string, msg *MulticastMessage) SendResponse {
	var messageID string
	err := c.backoff.RetryWithPredicate(ctx, func() error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			id, err := c.post(ctx, token, msg)
			if err != nil {
				return err
			}
			messageID = id
			return nil
		})
	}, shouldRetry)

	if err == nil {
		return SendResponse{Success: true, MessageID: messageID}
	}

	var sendErr *SendError
	switch {
	case stderrors.As(err, &sendErr):
	case circuitbreaker.IsCircuitBreakerError(err):
		sendErr = &SendError{Code: CodeServerUnavailable, Message: err.Error(), StatusCode: http.StatusServiceUnavailable}
	default:
		sendErr = &SendError{Code: CodeServerUnavailable, Message: err.Error()}
	}
	return SendResponse{Error: sendErr}
}

func (c *Client) post(ctx context.Context, token string, msg *MulticastMessage) (string, error) {
	payload, err := json.Marshal(buildRequest(token, msg))
	if err != nil {
		return "", &SendError{Code: CodeInvalidArgument, Message: fmt.Sprintf("failed to marshal message: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var ok fcmResponse
		if err := json.Unmarshal(body, &ok); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		return ok.Name, nil
	}

	var errBody fcmErrorBody
	if err := json.Unmarshal(body, &errBody); err != nil {
		return "", classify(resp.StatusCode, nil)
	}
	return "", classify(resp.StatusCode, &errBody)
}

// shouldRetry retries transient per-token failures and network errors, but
// not breaker rejections, cancellation or token-specific errors.
func shouldRetry(err error) bool {
	if circuitbreaker.IsCircuitBreakerError(err) ||
		stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sendErr *SendError
	if stderrors.As(err, &sendErr) {
		return retryable(sendErr)
	}
	return true
}

func countsAgainstBreaker(err error) bool {
	var sendErr *SendError
	if stderrors.As(err, &sendErr) {
		return transportWide(sendErr)
	}
	return true
}

// LogSender accepts every message and only logs it. It stands in for the
// push transport when no project is configured.
type LogSender struct {
	logger *logrus.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendEachForMulticast reports success for every token
func (s *LogSender) SendEachForMulticast(_ context.Context, msg *MulticastMessage) (*BatchResponse, error) {
	if msg == nil {
		return nil, errors.NewInvalidInputError("message", "is required")
	}
	batch := &BatchResponse{Responses: make([]SendResponse, len(msg.Tokens))}
	for i := range msg.Tokens {
		batch.Responses[i] = SendResponse{Success: true, MessageID: fmt.Sprintf("local-%d", i)}
		batch.SuccessCount++
	}
	title := ""
	if msg.Notification != nil {
		title = msg.Notification.Title
	}
	s.logger.WithFields(logrus.Fields{
		"tokens": len(msg.Tokens),
		"title":  title,
	}).Info("Push transport not configured, notification logged only")
	return batch, nil
}
