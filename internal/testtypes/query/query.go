package query

import (
	"context"

	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/verification"
)

// Query verifies multiple-queries endpoints and reconciles the queries they issue
// against the database counters.
type Query struct {
	testtypes.Base
}

func (t *Query) Verify(ctx context.Context, url string) (*verification.Messages, error) {
	if _, err := t.MaxConcurrency(); err != nil {
		return nil, err
	}

	messages := verification.NewMessages(url)
	if verifyEndpoint(ctx, &t.Base, url, messages) {
		reconcile(ctx, &t.Base, url, false, messages)
	}
	return messages, nil
}
