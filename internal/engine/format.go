package engine

import (
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMinutes renders a signed minute count, e.g. "-10分".
func FormatMinutes(minutes int) string {
	return strconv.Itoa(minutes) + "分"
}

// FormatOverdue renders remaining time for staff boards: "12分" or "12分超過".
func FormatOverdue(remaining int) string {
	if remaining < 0 {
		return strconv.Itoa(-remaining) + "分超過"
	}
	return strconv.Itoa(remaining) + "分"
}

func FormatWorkTime(minutes int) string {
	return strconv.Itoa(minutes/60) + "時間" + strconv.Itoa(minutes%60) + "分"
}

// FormatJPY renders a yen amount with thousands separators, e.g. "¥18,500".
func FormatJPY(amount int64) string {
	return "¥" + message.NewPrinter(language.Japanese).Sprintf("%d", amount)
}

// FormatClock renders an instant as HH:MM in business time.
func FormatClock(t time.Time) string {
	return t.In(JST).Format("15:04")
}
