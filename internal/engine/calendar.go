package engine

import (
	"time"
)

// JST is the venue's wall clock.
var JST = time.FixedZone("JST", 9*60*60)

// BusinessDayStartHour is the JST hour at which a business day begins.
const BusinessDayStartHour = 6

const businessDateLayout = "2006-01-02"

// BusinessDate maps an instant to the business day it belongs to. Instants
// before 06:00 JST belong to the previous calendar day.
func BusinessDate(t time.Time) time.Time {
	local := t.In(JST)
	if local.Hour() < BusinessDayStartHour {
		local = local.AddDate(0, 0, -1)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, JST)
}

// BusinessDayRange returns the half-open [start, end) window of a business date.
func BusinessDayRange(date time.Time) (time.Time, time.Time) {
	local := date.In(JST)
	start := time.Date(local.Year(), local.Month(), local.Day(), BusinessDayStartHour, 0, 0, 0, JST)
	return start, start.AddDate(0, 0, 1)
}

func ParseBusinessDate(raw string) (time.Time, error) {
	parsed, err := time.ParseInLocation(businessDateLayout, raw, JST)
	if err != nil {
		return time.Time{}, invalidInput("date", "must be formatted as YYYY-MM-DD")
	}
	return parsed, nil
}

func FormatBusinessDate(date time.Time) string {
	return date.In(JST).Format(businessDateLayout)
}

type HolidayCalendar struct {
	days map[string]struct{}
}

func NewHolidayCalendar(dates ...string) (HolidayCalendar, error) {
	days := make(map[string]struct{}, len(dates))
	for _, raw := range dates {
		parsed, err := ParseBusinessDate(raw)
		if err != nil {
			return HolidayCalendar{}, err
		}
		days[FormatBusinessDate(parsed)] = struct{}{}
	}
	return HolidayCalendar{days: days}, nil
}

func (c HolidayCalendar) IsHoliday(date time.Time) bool {
	_, ok := c.days[FormatBusinessDate(date)]
	return ok
}

// IsWeekendOrHoliday applies the higher bonus threshold on Fridays, Saturdays,
// public holidays and the eve of a public holiday.
func (c HolidayCalendar) IsWeekendOrHoliday(date time.Time) bool {
	local := date.In(JST)
	switch local.Weekday() {
	case time.Friday, time.Saturday:
		return true
	}
	return c.IsHoliday(local) || c.IsHoliday(local.AddDate(0, 0, 1))
}

func (c HolidayCalendar) Len() int {
	return len(c.days)
}

// JapaneseHolidays returns the public holidays for 2025 through 2027.
func JapaneseHolidays() HolidayCalendar {
	calendar, err := NewHolidayCalendar(japaneseHolidays...)
	if err != nil {
		panic(err)
	}
	return calendar
}

var japaneseHolidays = []string{
	"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-13", "2025-02-11", "2025-02-23", "2025-02-24",
	"2025-03-20", "2025-04-29", "2025-05-03", "2025-05-04", "2025-05-05", "2025-05-06", "2025-07-21",
	"2025-08-11", "2025-09-15", "2025-09-23", "2025-10-13", "2025-11-03", "2025-11-23", "2025-11-24",

	"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-12", "2026-02-11", "2026-02-23", "2026-03-20",
	"2026-04-29", "2026-05-03", "2026-05-04", "2026-05-05", "2026-05-06", "2026-07-20", "2026-08-11",
	"2026-09-21", "2026-09-22", "2026-09-23", "2026-10-12", "2026-11-03", "2026-11-23",

	"2027-01-01", "2027-01-02", "2027-01-03", "2027-01-11", "2027-02-11", "2027-02-23", "2027-03-21",
	"2027-03-22", "2027-04-29", "2027-05-03", "2027-05-04", "2027-05-05", "2027-07-19", "2027-08-11",
	"2027-09-20", "2027-09-23", "2027-10-11", "2027-11-03", "2027-11-23",
}
