package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/nerrad567/ndb/internal/cas"
	"github.com/nerrad567/ndb/internal/device"
)

const (
	missing  = "-"
	ellipsis = "…"

	// tableTimeLayout keeps Last Seen within its 19-column slot.
	tableTimeLayout = "2006-01-02 15:04:05"
)

// Column widths for device tables.
const (
	widthUID      = 12
	widthHostname = 24
	widthIP       = 15
	widthCategory = 8
	widthLastSeen = 19
)

// DeviceRow is the listing shape of a device, shared by ls and query.
type DeviceRow struct {
	UID            string  `json:"uid"`
	Hostname       *string `json:"hostname"`
	IPAddress      *string `json:"ip_address"`
	DeviceCategory *string `json:"device_category"`
	CASHash        string  `json:"cas_hash"`
	LastSeen       string  `json:"last_seen"`
}

// DeviceRows converts registry records to listing rows.
func DeviceRows(records []device.Record) []DeviceRow {
	rows := make([]DeviceRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, DeviceRow{
			UID:            r.UID,
			Hostname:       r.Hostname,
			IPAddress:      r.IPAddress,
			DeviceCategory: r.DeviceCategory,
			CASHash:        r.CASHash,
			LastSeen:       r.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

// WriteJSON writes v as two-space indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Clip shortens s to fit width display columns, marking the cut with an
// ellipsis. Empty values render as "-".
func Clip(s string, width int) string {
	if s == "" {
		return missing
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, ellipsis)
}

var (
	leftCell = func(width int) lipgloss.Style {
		return lipgloss.NewStyle().Width(width)
	}
	rightCell = func(width int) lipgloss.Style {
		return lipgloss.NewStyle().Width(width).Align(lipgloss.Right)
	}
)

func tableLine(cells ...string) string {
	return strings.Join(cells, "  ")
}

// WriteDeviceTable writes a compact fixed-width table of records.
func WriteDeviceTable(w io.Writer, records []device.Record) error {
	header := tableLine(
		leftCell(widthUID).Render("UID"),
		leftCell(widthHostname).Render("Hostname"),
		leftCell(widthIP).Render("IP"),
		leftCell(widthCategory).Render("Cat"),
		"Last Seen",
	)
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	for _, r := range records {
		lastSeen := missing
		if !r.LastSeen.IsZero() {
			lastSeen = r.LastSeen.UTC().Format(tableTimeLayout)
		}
		line := tableLine(
			leftCell(widthUID).Render(Clip(r.UID, widthUID)),
			leftCell(widthHostname).Render(Clip(deref(r.Hostname), widthHostname)),
			leftCell(widthIP).Render(Clip(deref(r.IPAddress), widthIP)),
			leftCell(widthCategory).Render(Clip(deref(r.DeviceCategory), widthCategory)),
			rightCell(widthLastSeen).Render(lastSeen),
		)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteContent writes content, adding a trailing newline only when missing.
func WriteContent(w io.Writer, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	_, err := io.WriteString(w, content)
	return err
}

// WriteEntries writes store entries. With showHash each entry is preceded
// by "@hash" and entries are separated by "---".
func WriteEntries(w io.Writer, entries []cas.Entry, showHash bool) error {
	for i, e := range entries {
		if showHash {
			if _, err := fmt.Fprintf(w, "%s%s\n", cas.KeyMarker, e.Hash); err != nil {
				return err
			}
		}
		if err := WriteContent(w, e.Content); err != nil {
			return err
		}
		if showHash && i < len(entries)-1 {
			if _, err := fmt.Fprintln(w, "---"); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteStatus writes the text form of a status report.
func WriteStatus(w io.Writer, path string, rep *device.StatusReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s\n", path)
	fmt.Fprintf(&b, "Devices:  %d\n", rep.Devices)
	fmt.Fprintf(&b, "CAS:      %d\n", rep.CAS)
	fmt.Fprintf(&b, "Orphans:  %d\n", rep.OrphansCount)

	if len(rep.DeviceHashes) > 0 {
		b.WriteString("Device hashes:\n")
		for _, h := range rep.DeviceHashes {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if len(rep.Orphans) > 0 {
		b.WriteString("Orphan hashes:\n")
		for _, h := range rep.Orphans {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
