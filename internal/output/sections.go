package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/lumenhour/lumenhour/internal/core"
)

type reportSection struct {
	Title string
	Lines []string
}

type sunRow struct {
	Event string
	Time  string
	Notes string
}

func reportTitle(report *core.Report) string {
	name := report.PlaceName
	if name == "" {
		name = report.Location.Name
	}
	if name == "" {
		name = report.Location.Coordinates.String()
	}
	return fmt.Sprintf("%s on %s (%s)", name, report.Sun.Date, report.Sun.Timezone)
}

func reportLocation(report *core.Report) *time.Location {
	if report.Sun.Timezone != "" {
		if loc, err := time.LoadLocation(report.Sun.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

func clock(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("15:04")
}

func windowText(w core.Window, loc *time.Location) string {
	if w.IsZero() {
		return "-"
	}
	return clock(w.Start, loc) + " - " + clock(w.End, loc)
}

func durationText(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Minute)
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}

func sunRows(report *core.Report) []sunRow {
	loc := reportLocation(report)
	sun := report.Sun
	return []sunRow{
		{Event: "Blue hour (morning)", Time: windowText(sun.MorningBlue, loc), Notes: durationText(sun.MorningBlue.Duration())},
		{Event: "Dawn", Time: clock(sun.Dawn, loc)},
		{Event: "Sunrise", Time: clock(sun.Sunrise, loc)},
		{Event: "Golden hour (morning)", Time: windowText(sun.MorningGolden, loc), Notes: durationText(sun.MorningGolden.Duration())},
		{Event: "Solar noon", Time: clock(sun.SolarNoon, loc), Notes: dayLengthNote(sun)},
		{Event: "Golden hour (evening)", Time: windowText(sun.EveningGolden, loc), Notes: durationText(sun.EveningGolden.Duration())},
		{Event: "Sunset", Time: clock(sun.Sunset, loc)},
		{Event: "Dusk", Time: clock(sun.Dusk, loc)},
		{Event: "Blue hour (evening)", Time: windowText(sun.EveningBlue, loc), Notes: durationText(sun.EveningBlue.Duration())},
	}
}

func dayLengthNote(sun core.SunTimes) string {
	if length := sun.DayLength(); length > 0 {
		return "day length " + durationText(length)
	}
	if sun.Polar {
		return "polar day or night"
	}
	return ""
}

func reportSections(report *core.Report) []reportSection {
	sections := make([]reportSection, 0, 3)

	if w := report.Weather; w != nil {
		lines := []string{
			fmt.Sprintf("Conditions: %s", w.Conditions),
			fmt.Sprintf("Sky: %s, %d%% cloud cover", w.Description, w.CloudCover),
			fmt.Sprintf("Temperature: %.1f°C (feels like %.1f°C)", w.TemperatureC, w.FeelsLikeC),
		}
		if w.VisibilityM > 0 {
			lines = append(lines, fmt.Sprintf("Visibility: %.1f km", float64(w.VisibilityM)/1000))
		}
		lines = append(lines, fmt.Sprintf("Wind: %.1f m/s", w.WindSpeedMS))
		sections = append(sections, reportSection{Title: "Weather", Lines: lines})
	}

	if len(report.Photos) > 0 {
		lines := make([]string, 0, len(report.Photos))
		for _, photo := range report.Photos {
			lines = append(lines, photoLine(photo))
		}
		sections = append(sections, reportSection{Title: "Inspiration", Lines: lines})
	}

	if len(report.Warnings) > 0 {
		sections = append(sections, reportSection{Title: "Warnings", Lines: report.Warnings})
	}
	return sections
}

func photoLine(photo core.Photo) string {
	link := photo.PageURL
	if link == "" {
		link = photo.URL
	}
	credit := photo.Photographer
	if credit == "" {
		credit = "unknown photographer"
	}
	return fmt.Sprintf("%s by %s (%s)", link, credit, photo.Source)
}

func renderSections(sections []reportSection, markdown bool) string {
	if len(sections) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, section := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		if markdown {
			sb.WriteString(fmt.Sprintf("\n\n### %s\n", section.Title))
			for _, line := range section.Lines {
				sb.WriteString(fmt.Sprintf("- %s\n", escapeMarkdownCell(line)))
			}
		} else {
			sb.WriteString(fmt.Sprintf("\n\n%s:\n", section.Title))
			for _, line := range section.Lines {
				sb.WriteString(fmt.Sprintf("  %s\n", line))
			}
		}
	}
	return sb.String()
}

func limitText(limit int, window string) string {
	if limit <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d / %s", limit, window)
}

func timeText(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func locationPlace(location core.Location) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{location.City, location.Region, location.Country} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
