package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	appI18n "github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/i18n"
)

// renderResultSheet writes a printable HTML version of an attempt result.
func renderResultSheet(w http.ResponseWriter, r *http.Request, res *exam.AttemptResult) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := resultSheet(res).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func verdictID(passed bool) string {
	if passed {
		return "ResultPassed"
	}
	return "ResultFailed"
}

// itemPoints is the points cell of a result row.
func itemPoints(ctx context.Context, it exam.ReviewItem) string {
	if it.PendingReview {
		return appI18n.T(ctx, "ResultPending")
	}
	return formatPoints(it.PointsEarned) + " / " + formatPoints(it.Points)
}

func formatPoints(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// displayAnswer renders a stored answer payload as plain text.
func displayAnswer(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return displayValue(v)
}

func displayValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatPoints(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = displayValue(e)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(x)
	}
}
