package feed

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"
)

// ErrEmptyFeed is returned when neither parser pass produced a single event.
var ErrEmptyFeed = errors.New("feed: no events found")

// Parse turns raw calendar text into events. A strict go-ical pass runs
// first; when it yields nothing but the text still contains event containers,
// a regex-based best-effort pass over unfolded text is attempted. Entries
// lacking a resolvable start and end are dropped, never reported as errors.
func Parse(raw []byte, loc *time.Location) ([]Event, error) {
	if loc == nil {
		loc = time.Local
	}

	events := parseStrict(raw, loc)
	if len(events) == 0 && hasContainers(raw) {
		events = parseLoose(raw, loc)
	}
	if len(events) == 0 {
		return nil, ErrEmptyFeed
	}
	return events, nil
}

func hasContainers(raw []byte) bool {
	return bytes.Contains(raw, []byte("BEGIN:VEVENT")) ||
		bytes.Contains(raw, []byte("BEGIN:VFREEBUSY"))
}

func parseStrict(raw []byte, loc *time.Location) []Event {
	dec := ical.NewDecoder(bytes.NewReader(raw))
	var events []Event

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed feed; the loose pass may still salvage it.
			break
		}

		for _, comp := range cal.Children {
			switch comp.Name {
			case ical.CompEvent:
				if ev, ok := eventFromProps(strictProps{comp}, loc); ok {
					events = append(events, ev)
				}
			case ical.CompFreeBusy:
				events = append(events, freeBusyRanges(strictProps{comp}, loc)...)
			}
		}
	}
	return events
}

// propSource abstracts property access so the strict and loose passes share
// the same event assembly logic.
type propSource interface {
	// value returns the raw value and the VALUE parameter for the first
	// occurrence of the named property.
	value(name string) (val, valueParam string, ok bool)
	// text returns the unescaped free-text value of the named property.
	text(name string) string
	// values returns all raw values for the named property.
	values(name string) []string
}

type strictProps struct{ comp *ical.Component }

func (s strictProps) value(name string) (string, string, bool) {
	p := s.comp.Props.Get(name)
	if p == nil {
		return "", "", false
	}
	return p.Value, p.Params.Get(ical.ParamValue), true
}

func (s strictProps) text(name string) string {
	v, err := s.comp.Props.Text(name)
	if err != nil {
		return ""
	}
	return v
}

func (s strictProps) values(name string) []string {
	props := s.comp.Props.Values(name)
	out := make([]string, 0, len(props))
	for _, p := range props {
		out = append(out, p.Value)
	}
	return out
}

func eventFromProps(src propSource, loc *time.Location) (Event, bool) {
	var ev Event
	ev.Summary = src.text("SUMMARY")
	ev.Location = src.text("LOCATION")

	startVal, startParam, ok := src.value("DTSTART")
	if !ok {
		return ev, false
	}
	start, isDate, err := parseStamp(startVal, startParam, loc)
	if err != nil {
		return ev, false
	}

	var end time.Time
	if endVal, endParam, ok := src.value("DTEND"); ok {
		end, _, err = parseStamp(endVal, endParam, loc)
		if err != nil {
			return ev, false
		}
	} else if durVal, _, ok := src.value("DURATION"); ok {
		dur, err := parseDuration(durVal)
		if err != nil {
			return ev, false
		}
		end = start.Add(dur)
	} else {
		// No derivable end; drop the entry.
		return ev, false
	}

	if !end.After(start) {
		return ev, false
	}

	ev.Start = start.UTC()
	ev.End = end.UTC()
	ev.AllDay = isDate
	if rrule, _, ok := src.value("RRULE"); ok {
		ev.RRule = rrule
	}
	for _, raw := range src.values("EXDATE") {
		for _, part := range strings.Split(raw, ",") {
			if t, _, err := parseStamp(strings.TrimSpace(part), "", loc); err == nil {
				ev.ExDates = append(ev.ExDates, t.UTC())
			}
		}
	}
	return ev, true
}

// freeBusyRanges expands FREEBUSY properties: comma-separated pairs of
// "start/end" or "start/duration".
func freeBusyRanges(src propSource, loc *time.Location) []Event {
	var events []Event
	for _, raw := range src.values("FREEBUSY") {
		for _, pair := range strings.Split(raw, ",") {
			parts := strings.SplitN(strings.TrimSpace(pair), "/", 2)
			if len(parts) != 2 {
				continue
			}
			start, _, err := parseStamp(parts[0], "", loc)
			if err != nil {
				continue
			}
			var end time.Time
			if rest := strings.TrimPrefix(parts[1], "+"); strings.HasPrefix(rest, "P") || strings.HasPrefix(rest, "-P") {
				dur, err := parseDuration(rest)
				if err != nil {
					continue
				}
				end = start.Add(dur)
			} else {
				end, _, err = parseStamp(parts[1], "", loc)
				if err != nil {
					continue
				}
			}
			if !end.After(start) {
				continue
			}
			events = append(events, Event{
				Summary: "Busy",
				Start:   start.UTC(),
				End:     end.UTC(),
			})
		}
	}
	return events
}

// parseStamp parses the three supported encodings: date-only (all-day),
// local date-time, and UTC date-time with a Z suffix.
func parseStamp(v, valueParam string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if strings.EqualFold(valueParam, "DATE") || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}
	t, err := time.ParseInLocation("20060102T150405", v, loc)
	return t, false, err
}

// parseDuration handles the P[n]D[T[n]H[n]M[n]S] style, plus weeks and an
// optional leading sign.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	neg := false
	if strings.HasPrefix(v, "-") {
		neg = true
		v = v[1:]
	} else if strings.HasPrefix(v, "+") {
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") {
		return 0, errors.New("malformed duration: " + v)
	}
	v = v[1:]

	var dur time.Duration
	inTime := false
	num := ""
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T' || r == 't':
			inTime = true
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, errors.New("malformed duration: " + v)
		}
		num = ""
		switch {
		case r == 'W' || r == 'w':
			dur += time.Duration(n) * 7 * 24 * time.Hour
		case r == 'D' || r == 'd':
			dur += time.Duration(n) * 24 * time.Hour
		case (r == 'H' || r == 'h') && inTime:
			dur += time.Duration(n) * time.Hour
		case (r == 'M' || r == 'm') && inTime:
			dur += time.Duration(n) * time.Minute
		case (r == 'S' || r == 's') && inTime:
			dur += time.Duration(n) * time.Second
		default:
			return 0, errors.New("malformed duration: " + v)
		}
	}
	if num != "" {
		return 0, errors.New("malformed duration: " + v)
	}
	if neg {
		dur = -dur
	}
	return dur, nil
}

var (
	foldRe  = regexp.MustCompile(`\r?\n[ \t]`)
	blockRe = regexp.MustCompile(`(?s)BEGIN:(VEVENT|VFREEBUSY)\r?\n(.*?)END:(VEVENT|VFREEBUSY)`)
	propRe  = regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z0-9-]*)(;[^:\r\n]*)?:(.*)$`)
)

// looseProps is the property view used by the regex fallback pass.
type looseProps map[string][]looseProp

type looseProp struct {
	params string
	value  string
}

func (l looseProps) value(name string) (string, string, bool) {
	props := l[name]
	if len(props) == 0 {
		return "", "", false
	}
	valueParam := ""
	for _, kv := range strings.Split(strings.TrimPrefix(props[0].params, ";"), ";") {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.EqualFold(k, "VALUE") {
			valueParam = v
		}
	}
	return props[0].value, valueParam, true
}

func (l looseProps) text(name string) string {
	props := l[name]
	if len(props) == 0 {
		return ""
	}
	return unescapeText(props[0].value)
}

func (l looseProps) values(name string) []string {
	out := make([]string, 0, len(l[name]))
	for _, p := range l[name] {
		out = append(out, p.value)
	}
	return out
}

// parseLoose is the best-effort second pass: unfold, carve out container
// blocks, and extract PROPERTY:value pairs per block.
func parseLoose(raw []byte, loc *time.Location) []Event {
	unfolded := foldRe.ReplaceAllString(string(raw), "")

	var events []Event
	for _, block := range blockRe.FindAllStringSubmatch(unfolded, -1) {
		props := make(looseProps)
		for _, m := range propRe.FindAllStringSubmatch(block[2], -1) {
			name := strings.ToUpper(m[1])
			props[name] = append(props[name], looseProp{
				params: m[2],
				value:  strings.TrimRight(m[3], "\r"),
			})
		}

		switch block[1] {
		case "VEVENT":
			if ev, ok := eventFromProps(props, loc); ok {
				events = append(events, ev)
			}
		case "VFREEBUSY":
			events = append(events, freeBusyRanges(props, loc)...)
		}
	}
	return events
}

// unescapeText reverses RFC5545 text escaping for commas, semicolons,
// newlines and backslashes.
func unescapeText(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',', ';', '\\':
			b.WriteByte(v[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
