// Package locators holds every selector the exporter depends on. The dashboard markup is owned by a
// third party and changes without notice, so call sites only ever refer to a Name and a breakage
// is fixed here or in an override file.
package locators

import (
	"fmt"
	"insights-exporter/internal/entity"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type Name string

const (
	LoginEmail    Name = "login_email"
	LoginPassword Name = "login_password"
	LoginSubmit   Name = "login_submit"

	DashboardFrame Name = "dashboard_frame"

	RelativeDateChip  Name = "relative_date_chip"
	RelativeModeInput Name = "relative_mode_input"
	IsOption          Name = "is_option"
	MonthsUnit        Name = "months_unit"
	HoursOption       Name = "hours_option"
	IntervalValue     Name = "interval_value"

	ValueRequiredChip Name = "value_required_chip"
	ModalValueInput   Name = "modal_value_input"

	ThisWeekChip       Name = "this_week_chip"
	MoreOption         Name = "more_option"
	PreviousWeekOption Name = "previous_week_option"
	SiteNameChip       Name = "site_name_chip"
	ComboboxInput      Name = "combobox_input"
	PageBody           Name = "page_body"

	UpdateButton Name = "update_button"

	Tile         Name = "tile"
	TileValue    Name = "tile_value"
	TileActions  Name = "tile_actions"
	DownloadData Name = "download_data"
	ExportFormat Name = "export_format"
	FormatCaret  Name = "format_caret"
	FormatInput  Name = "format_input"
	ExportOpen   Name = "export_open"
	ExportBody   Name = "export_body"
)

func css(v string) entity.Locator    { return entity.Locator{Strategy: entity.StrategyCSS, Value: v} }
func xpath(v string) entity.Locator  { return entity.Locator{Strategy: entity.StrategyXPath, Value: v} }
func byID(v string) entity.Locator   { return entity.Locator{Strategy: entity.StrategyID, Value: v} }
func byName(v string) entity.Locator { return entity.Locator{Strategy: entity.StrategyName, Value: v} }

// Tile, TileActions and DashboardFrame take a %s argument (tile label, frame id).
var defaults = map[Name]entity.Locator{
	LoginEmail:    byName("email"),
	LoginPassword: byName("password"),
	LoginSubmit:   byID("btnLogin"),

	DashboardFrame: byID("%s"),

	RelativeDateChip:  xpath("//span[contains(text(),'is in the last 7 days')]"),
	RelativeModeInput: css("input.kYwJhe[readonly][value*='is in the last']"),
	IsOption:          xpath("//div[text()='is'] | //span[text()='is']"),
	MonthsUnit:        css("input.kYwJhe[readonly][value='months']"),
	HoursOption:       xpath("//div[contains(text(),'hours')] | //span[contains(text(),'hours')]"),
	IntervalValue:     css("input[data-testid='interval-value']"),

	ValueRequiredChip: xpath("//span[contains(@class, 'ChipButton-sc-1ov80kq-0') and .//span[text()='Value required']]"),
	ModalValueInput:   css("input.InputText__StyledInput-sc-6cvg1f-0.iOZCVS"),

	ThisWeekChip:       xpath("//span[@role='button' and .//span[normalize-space()='This Week']]"),
	MoreOption:         xpath("//div[normalize-space()='More'] | //span[normalize-space()='More']"),
	PreviousWeekOption: xpath("//button[.//div[normalize-space()='Previous Week']]"),
	SiteNameChip:       xpath("//div[.//span[normalize-space()='Site Name']]//span[@role='button' and .//span[normalize-space()='is any value']]"),
	ComboboxInput:      css("div[role='combobox'] input.InputText__StyledInput-sc-6cvg1f-0.iOZCVS"),
	PageBody:           css("body"),

	UpdateButton: css("button.ButtonBase__ButtonOuter-sc-1bpio6j-0.RunButton__IconButtonWithBackground-sc-skoy04-0"),

	Tile:         css("section[aria-label='%s']"),
	TileValue:    css("span.TextBase-sc-90l5yt-0.Span-sc-1e8sfe6-0.Text-sc-1d84yfs-0.jPObWb.eCUHIC > span"),
	TileActions:  css("button[aria-label*='%s - Tile actions']"),
	DownloadData: xpath("//button[.//span[normalize-space()='Download data']]"),
	ExportFormat: byID("qr-export-modal-format"),
	FormatCaret:  css("[data-testid='caret']"),
	FormatInput:  css("input#listbox-input-qr-export-modal-format"),
	ExportOpen:   css("button#qr-export-modal-open"),
	ExportBody:   css("pre"),
}

type Table struct {
	entries map[Name]entity.Locator
}

// Default returns the built-in table.
func Default() *Table {
	entries := make(map[Name]entity.Locator, len(defaults))
	for name, loc := range defaults {
		loc.Name = string(name)
		entries[name] = loc
	}

	return &Table{entries: entries}
}

// Get returns the locator registered under name. Unknown names are a programming error.
func (t *Table) Get(name Name) entity.Locator {
	loc, ok := t.entries[name]
	if !ok {
		panic(fmt.Sprintf("locators: unknown name %q", name))
	}

	return loc
}

func (t *Table) Names() []Name {
	names := make([]Name, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

// Override replaces entries; only known names are accepted.
func (t *Table) Override(overrides map[Name]entity.Locator) error {
	for name, loc := range overrides {
		if _, ok := t.entries[name]; !ok {
			return fmt.Errorf("unknown locator %q", name)
		}

		switch loc.Strategy {
		case entity.StrategyCSS, entity.StrategyXPath, entity.StrategyID, entity.StrategyName:
		default:
			return fmt.Errorf("locator %q: unsupported strategy %q", name, loc.Strategy)
		}

		if loc.Value == "" {
			return fmt.Errorf("locator %q: empty value", name)
		}

		loc.Name = string(name)
		t.entries[name] = loc
	}

	return nil
}

// LoadFile builds the default table and applies the overrides found in a YAML file of the form
//
//	update_button:
//	  strategy: css
//	  value: button.run
//
// An empty path yields the default table.
func LoadFile(path string) (*Table, error) {
	table := Default()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locators file: %w", err)
	}

	var overrides map[Name]entity.Locator
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := table.Override(overrides); err != nil {
		return nil, fmt.Errorf("invalid locators file: %w", err)
	}

	return table, nil
}
