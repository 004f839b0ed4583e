package query

import (
	"context"
	"fmt"

	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/verification"
)

// Update verifies database-updates endpoints: the query checks, the update counters and
// that rows in the world table actually changed.
type Update struct {
	testtypes.Base
}

func (t *Update) Verify(ctx context.Context, url string) (*verification.Messages, error) {
	if _, err := t.MaxConcurrency(); err != nil {
		return nil, err
	}

	messages := verification.NewMessages(url)
	if !verifyEndpoint(ctx, &t.Base, url, messages) {
		return messages, nil
	}
	if t.Database == nil {
		return messages, nil
	}

	before, _ := t.Database.GetAllFromWorldTable(ctx)
	reconcile(ctx, &t.Base, url, true, messages)
	after, _ := t.Database.GetAllFromWorldTable(ctx)

	verifyWorldChanged(before, after, messages)
	return messages, nil
}

func verifyWorldChanged(before, after map[int32]int32, messages *verification.Messages) {
	if len(before) == 0 || len(after) == 0 {
		messages.Error("World table unavailable",
			fmt.Sprintf("Unable to read the world table (%d rows before, %d rows after)", len(before), len(after)))
		return
	}

	changed := 0
	for id, n := range after {
		if old, ok := before[id]; ok && old != n {
			changed++
		}
	}
	if changed == 0 {
		messages.Error("No rows updated", "No randomNumber in the world table changed while updates were requested")
		return
	}
	messages.Pass(fmt.Sprintf("%d rows in the world table changed", changed))
}
