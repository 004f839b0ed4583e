// Package fortune verifies server-side rendered fortune pages.
package fortune

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"benchmark-verifier/internal/database"
	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/verification"
	"golang.org/x/net/html"
)

// AdditionalFortune is the row every implementation adds before rendering.
const AdditionalFortune = "Additional fortune added at request time."

// Fortune seeds the fortune table, fetches the page once and checks that every row made
// it into the rendered table, escaped and sorted.
type Fortune struct {
	testtypes.Base
}

func (t *Fortune) Verify(ctx context.Context, url string) (*verification.Messages, error) {
	if _, err := t.MaxConcurrency(); err != nil {
		return nil, err
	}
	if t.Database == nil {
		return nil, &verification.ConfigurationError{Field: "database", Reason: "the fortune test needs a database"}
	}

	messages := verification.NewMessages(url)
	if !t.FetchHeaders(ctx, url, verification.ContentTypeHTML, messages) {
		return messages, nil
	}

	// A failed insert shows up as a short page below.
	if err := t.Database.InsertOneThousandFortunes(ctx); err != nil {
		t.Log().Debug("inserting fortunes failed", "database", t.Database.Name(), "error", err)
	}

	body, ok := t.Client.GetResponseBody(ctx, url, messages)
	if !ok {
		return messages, nil
	}
	messages.SetBody(body)
	verifyFortunes(body, messages)
	return messages, nil
}

// ExpectedRows is the number of data rows a page must render after one seeding.
func ExpectedRows() int {
	return len(database.CanonicalFortunes) + database.SeededFortuneCount + 1
}

func verifyFortunes(body []byte, messages *verification.Messages) {
	rows := parseRows(body)
	failed := false

	if len(rows) != ExpectedRows() {
		failed = true
		messages.Error("Wrong row count",
			fmt.Sprintf("Found %d fortune rows instead of %d", len(rows), ExpectedRows()))
	}

	seen := make(map[string]int, len(rows))
	for _, message := range rows {
		seen[message]++
	}

	wantSeeded := database.SeededFortuneCount
	for _, f := range database.CanonicalFortunes {
		if f == database.SeededFortuneMessage {
			wantSeeded++
		}
	}
	if got := seen[database.SeededFortuneMessage]; got != wantSeeded {
		failed = true
		messages.Error("Seeded fortunes missing",
			fmt.Sprintf("%q appears %d times instead of %d", database.SeededFortuneMessage, got, wantSeeded))
	}

	var missing []string
	for _, f := range append(append([]string(nil), database.CanonicalFortunes...), AdditionalFortune) {
		if seen[f] == 0 {
			missing = append(missing, fmt.Sprintf("%q", f))
		}
	}
	if len(missing) > 0 {
		failed = true
		messages.Error("Missing fortunes",
			fmt.Sprintf("The page does not render %s. Messages must be HTML-escaped.", strings.Join(missing, ", ")))
	}

	if !sort.StringsAreSorted(rows) {
		failed = true
		messages.Error("Fortunes not sorted", "Fortune rows must be sorted by message")
	}

	if !failed {
		messages.Pass(fmt.Sprintf("%d fortunes rendered, escaped and sorted", len(rows)))
	}
}

// parseRows returns the message column of every table row that has data cells. Omitted
// end tags are tolerated the way browsers tolerate them.
func parseRows(body []byte) []string {
	var (
		rows  []string
		cells []string
		cell  strings.Builder
		inTD  bool
		inRow bool
	)

	closeCell := func() {
		if inTD {
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
			inTD = false
		}
	}
	closeRow := func() {
		closeCell()
		if inRow && len(cells) >= 2 {
			rows = append(rows, cells[1])
		}
		cells = nil
		inRow = false
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			closeRow()
			return rows
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "tr":
				closeRow()
				inRow = true
			case "td", "th":
				closeCell()
				inTD = string(name) == "td"
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "td":
				closeCell()
			case "tr", "table":
				closeRow()
			}
		case html.TextToken:
			if inTD {
				cell.Write(z.Text())
			}
		}
	}
}
