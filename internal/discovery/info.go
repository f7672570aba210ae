package discovery

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// SourceWebDeviceInfo tags records built from the device web API.
const SourceWebDeviceInfo = "web_device_info"

// DeviceInfo is what a CircuitPython board reports about itself.
type DeviceInfo struct {
	UID           string
	Hostname      *string
	IPAddress     *string
	Board         *string
	MCU           *string
	CircuitPython *string
	WebAPIVersion *int
}

// Record is the JSON document stored in the content store for a discovery.
// Unknown values are written as null.
type Record struct {
	UID           string  `json:"uid"`
	Hostname      *string `json:"hostname"`
	IPAddress     *string `json:"ip_address"`
	Board         *string `json:"board"`
	MCU           *string `json:"mcu"`
	CircuitPython *string `json:"circuitpython"`
	WebAPIVersion *int    `json:"web_api_version"`
	Source        string  `json:"source"`
	Seed          string  `json:"seed"`
	Label         string  `json:"label,omitempty"`
}

// Record builds the stored document. seed is the host the device was
// reached through.
func (d *DeviceInfo) Record(seed, label string) Record {
	return Record{
		UID:           d.UID,
		Hostname:      d.Hostname,
		IPAddress:     d.IPAddress,
		Board:         d.Board,
		MCU:           d.MCU,
		CircuitPython: d.CircuitPython,
		WebAPIVersion: d.WebAPIVersion,
		Source:        SourceWebDeviceInfo,
		Seed:          seed,
		Label:         label,
	}
}

// Content renders r as two-space indented JSON without HTML escaping and
// without a trailing newline.
func (r Record) Content() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Key aliases accepted in version.json, first non-empty wins.
var (
	uidKeys           = []string{"uid", "UID", "device_uid"}
	hostnameKeys      = []string{"hostname", "host", "HostName", "device_name"}
	ipKeys            = []string{"ip", "IP", "ip_address"}
	boardKeys         = []string{"board", "Board", "board_name"}
	mcuKeys           = []string{"mcu", "MCU", "chip", "cpu"}
	circuitPythonKeys = []string{"circuitpython", "CircuitPython", "version", "circuitpython_version"}
	webAPIVersionKeys = []string{"web_api_version", "WebAPIVersion", "web_api"}
)

// ParseVersionJSON parses a /cp/version.json body. It reports false when
// the body is not a JSON object or carries no UID.
func ParseVersionJSON(body string) (*DeviceInfo, bool) {
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}

	uid := pickString(obj, uidKeys)
	if uid == nil {
		return nil, false
	}

	info := &DeviceInfo{
		UID:           *uid,
		Hostname:      pickString(obj, hostnameKeys),
		IPAddress:     pickString(obj, ipKeys),
		Board:         pickString(obj, boardKeys),
		MCU:           pickString(obj, mcuKeys),
		CircuitPython: pickString(obj, circuitPythonKeys),
	}
	if v := pickString(obj, webAPIVersionKeys); v != nil {
		if n, err := strconv.Atoi(*v); err == nil {
			info.WebAPIVersion = &n
		}
	}
	return info, true
}

func pickString(obj map[string]any, keys []string) *string {
	for _, k := range keys {
		var s string
		switch v := obj[k].(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		case bool:
			s = strconv.FormatBool(v)
		default:
			continue
		}
		if s != "" {
			return &s
		}
	}
	return nil
}

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)

	htmlFields = map[string]*regexp.Regexp{
		"board":           regexp.MustCompile(`Board:\s*(.+)`),
		"mcu":             regexp.MustCompile(`MCU:\s*(.+)`),
		"circuitpython":   regexp.MustCompile(`CircuitPython:\s*([^\n]+)`),
		"ip":              regexp.MustCompile(`IP:\s*([^\s]+)`),
		"hostname":        regexp.MustCompile(`Hostname:\s*([^\s]+)`),
		"uid":             regexp.MustCompile(`UID:\s*([A-Za-z0-9_-]+)`),
		"web_api_version": regexp.MustCompile(`Web API Version:\s*(\d+)`),
	}
)

func stripTags(text string) string {
	t := tagRe.ReplaceAllString(text, "\n")
	t = strings.ReplaceAll(t, "\r\n", "\n")
	return blankLinesRe.ReplaceAllString(t, "\n\n")
}

// ParseHTML extracts device info from the board's HTML info page.
func ParseHTML(body string) (*DeviceInfo, bool) {
	text := stripTags(body)
	find := func(name string) *string {
		m := htmlFields[name].FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		v := strings.TrimSpace(m[1])
		if v == "" {
			return nil
		}
		return &v
	}

	uid := find("uid")
	if uid == nil {
		return nil, false
	}
	info := &DeviceInfo{
		UID:           *uid,
		Hostname:      find("hostname"),
		IPAddress:     find("ip"),
		Board:         find("board"),
		MCU:           find("mcu"),
		CircuitPython: find("circuitpython"),
	}
	if v := find("web_api_version"); v != nil {
		if n, err := strconv.Atoi(*v); err == nil {
			info.WebAPIVersion = &n
		}
	}
	return info, true
}

// Parse tries version.json first and falls back to the HTML info page.
func Parse(body string) (*DeviceInfo, bool) {
	if info, ok := ParseVersionJSON(body); ok {
		return info, true
	}
	return ParseHTML(body)
}
