package models

import "time"

type OrderStatus string

const (
	OrderStatusActive           OrderStatus = "Active"
	OrderStatusMarkedForRemoval OrderStatus = "MarkedForRemoval"
)

type ThresholdUnit string

const (
	ThresholdUnitDays   ThresholdUnit = "days"
	ThresholdUnitMonths ThresholdUnit = "months"
	ThresholdUnitYears  ThresholdUnit = "years"
)

func (u ThresholdUnit) Valid() bool {
	switch u {
	case ThresholdUnitDays, ThresholdUnitMonths, ThresholdUnitYears:
		return true
	}
	return false
}

type CleanFrequency string

const (
	CleanFrequencyNone    CleanFrequency = ""
	CleanFrequencyDaily   CleanFrequency = "daily"
	CleanFrequencyWeekly  CleanFrequency = "weekly"
	CleanFrequencyMonthly CleanFrequency = "monthly"
	CleanFrequencyYearly  CleanFrequency = "yearly"
)

// Interval returns the recurrence interval for the frequency.
// Monthly and yearly use fixed 30/365 day intervals, the same
// approximation as the threshold date math.
func (f CleanFrequency) Interval() (time.Duration, bool) {
	switch f {
	case CleanFrequencyDaily:
		return 24 * time.Hour, true
	case CleanFrequencyWeekly:
		return 7 * 24 * time.Hour, true
	case CleanFrequencyMonthly:
		return 30 * 24 * time.Hour, true
	case CleanFrequencyYearly:
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

type NoticeSeverity string

const (
	NoticeSeverityError   NoticeSeverity = "error"
	NoticeSeverityWarning NoticeSeverity = "warning"
	NoticeSeverityInfo    NoticeSeverity = "info"
)
