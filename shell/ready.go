package shell

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const readyInterval = 200 * time.Millisecond

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// waitReady polls url until the backend answers with any HTTP response, or timeout elapses.
func waitReady(ctx context.Context, log *zap.SugaredLogger, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := retryablehttp.NewClient()
	client.Logger = &logAdapter{SugaredLogger: log}
	client.RetryMax = int(timeout/readyInterval) + 1
	client.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return readyInterval
	}
	// any response means the server is up, only connection errors are retried
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("waiting for backend at %s: %w", url, err)
	}
	resp.Body.Close()
	return nil
}
