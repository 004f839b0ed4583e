package cli

import (
	"fmt"
	"strings"
	"time"

	"benchmark-verifier/internal/logger"
	"benchmark-verifier/internal/runner"
	"benchmark-verifier/internal/verification"
)

// Verdict is the overall outcome of one endpoint.
func Verdict(r *runner.Result) string {
	switch {
	case !r.Passed():
		return "FAIL"
	case r.Messages.Count(verification.SeverityWarning) > 0:
		return "WARN"
	default:
		return "PASS"
	}
}

func verdictColor(verdict string) string {
	switch verdict {
	case "FAIL":
		return logger.Red
	case "WARN":
		return logger.Yellow
	}
	return logger.Green
}

func findingLabel(s verification.Severity) (string, string) {
	switch s {
	case verification.SeverityError:
		return "FAIL", logger.Red
	case verification.SeverityWarning:
		return "WARN", logger.Yellow
	}
	return "PASS", logger.Green
}

// Report writes the findings of one result, then its verdict.
func Report(l *logger.Logger, r *runner.Result, quiet bool) {
	l.Log(fmt.Sprintf("VERIFYING %s (%s)", strings.ToUpper(r.Name), r.URL),
		logger.Options{Border: '-', Color: logger.Cyan, Quiet: quiet})

	findings := append(r.Database.Findings(), r.Messages.Findings()...)
	for _, f := range findings {
		label, color := findingLabel(f.Severity)
		text := fmt.Sprintf("   %s for %s", label, r.URL)
		if f.Severity != verification.SeverityInfo || f.Title != "Pass" {
			text += "\n     " + f.Title
		}
		text += "\n     " + f.Description
		l.Log(text, logger.Options{Color: color, Quiet: quiet})
	}

	lat := r.Messages.Latency()
	if lat.Count > 0 {
		l.Log(fmt.Sprintf("   %d requests, mean %s, p95 %s, p99 %s, max %s",
			lat.Count, lat.Mean, lat.P95, lat.P99, lat.Max), logger.Options{Quiet: quiet})
	}

	verdict := Verdict(r)
	l.Log(fmt.Sprintf("%s: %s (%d errors, %d warnings, %s)", r.Name, verdict,
		r.Messages.Count(verification.SeverityError)+r.Database.Count(verification.SeverityError),
		r.Messages.Count(verification.SeverityWarning), r.Elapsed.Round(time.Millisecond)),
		logger.Options{BorderBottom: '=', Color: verdictColor(verdict), Quiet: quiet})
}
