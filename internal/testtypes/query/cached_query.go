package query

import (
	"context"

	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/verification"
)

// CachedQuery verifies endpoints serving world rows from an in-process cache.
type CachedQuery struct {
	testtypes.Base
}

func (t *CachedQuery) Verify(ctx context.Context, url string) (*verification.Messages, error) {
	if _, err := t.MaxConcurrency(); err != nil {
		return nil, err
	}

	messages := verification.NewMessages(url)
	verifyEndpoint(ctx, &t.Base, url, messages)
	return messages, nil
}
