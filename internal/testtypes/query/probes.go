package query

import (
	"context"

	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/verification"
)

const (
	MinQueries = 1
	MaxQueries = 500
)

// Probes are appended to the endpoint URL in this order. Later probes may rely on
// database state left by earlier ones, so they are never reordered or parallelized.
var Probes = []string{"2", "0", "foo", "501", ""}

// verifyEndpoint runs the header probe followed by the parameter sweep. It reports
// whether the endpoint was reachable.
func verifyEndpoint(ctx context.Context, b *testtypes.Base, url string, messages *verification.Messages) bool {
	if !b.FetchHeaders(ctx, url, verification.ContentTypeJSON, messages) {
		return false
	}

	for _, probe := range Probes {
		expected := verification.TranslateQueryCount(probe, MinQueries, MaxQueries)

		body, ok := b.Client.GetResponseBody(ctx, url+probe, messages)
		if !ok {
			continue
		}
		messages.SetBody(body)
		verification.VerifyWithLength(body, probe, expected, messages)
	}
	return true
}
