package workflow

import (
	"insights-exporter/internal/config"
)

const (
	ReconciliationsTile    = "No. of Reconciliations"
	PaymentsSummaryTile    = "Payments summary"
	TopReportingGroupsTile = "Top Reporting Groups"
)

type TimeFilterKind string

const (
	// TimeRelativeHours rewrites the "last 7 days" filter to a window between two hour offsets.
	TimeRelativeHours TimeFilterKind = "relative_hours"
	// TimePreviousWeek picks the "Previous Week" preset from the "This Week" chip.
	TimePreviousWeek TimeFilterKind = "previous_week"
)

type TimeFilter struct {
	Kind TimeFilterKind
	From int
	To   int
}

type SiteFilterMode string

const (
	// SiteValueRequired fills the site through the "Value required" chip.
	SiteValueRequired SiteFilterMode = "value_required"
	// SiteCombobox fills the site through the "Site Name" chip and its combobox.
	SiteCombobox SiteFilterMode = "combobox"
)

type SiteFilter struct {
	Mode SiteFilterMode
	Name string
}

type SubmitMode string

const (
	SubmitClick SubmitMode = "click"
	// SubmitDispatch clicks through script; the button is covered by the closing popover.
	SubmitDispatch SubmitMode = "dispatch"
)

// Slot is the payload field an export fills.
type Slot int

const (
	SlotData Slot = iota
	SlotData1
)

// Dashboard describes how one dashboard is filtered and what is read from it.
type Dashboard struct {
	Name         string
	Report       string
	Authenticate bool
	Time         TimeFilter
	Site         SiteFilter
	Submit       SubmitMode
	// MetricTile is optional.
	MetricTile string
	ExportTile string
	Slot       Slot
}

// Dashboards returns the two dashboards of an export run, in processing order.
func Dashboards(c *config.InsightsConfig) []Dashboard {
	return []Dashboard{
		{
			Name:         "primary",
			Report:       c.PrimaryReport,
			Authenticate: true,
			Time: TimeFilter{
				Kind: TimeRelativeHours,
				From: c.IntervalFrom,
				To:   c.IntervalTo,
			},
			Site:       SiteFilter{Mode: SiteValueRequired, Name: c.SiteName},
			Submit:     SubmitClick,
			MetricTile: ReconciliationsTile,
			ExportTile: PaymentsSummaryTile,
			Slot:       SlotData,
		},
		{
			Name:       "secondary",
			Report:     c.SecondaryReport,
			Time:       TimeFilter{Kind: TimePreviousWeek},
			Site:       SiteFilter{Mode: SiteCombobox, Name: c.SiteName},
			Submit:     SubmitDispatch,
			ExportTile: TopReportingGroupsTile,
			Slot:       SlotData1,
		},
	}
}
