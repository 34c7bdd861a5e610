// Package naming picks a display name for a router out of the names the enrichment
// sources report for it.
package naming

import (
	"strings"
)

const (
	SourceManual     = "manual"
	SourceSNMP       = "snmp"
	SourceReverseDNS = "reverse_dns"
	SourceOSPF       = "ospf"
)

// MinScore is the quality bar a candidate must reach before it is stored.
const MinScore = 70

type Candidate struct {
	Name   string
	Source string
}

type scoredCandidate struct {
	Source      string
	StoredName  string
	DisplayName string
	Score       int
}

// NormalizeCandidate cleans rawName for storage, derives the short label shown on the map
// and scores it. ok is false for names that should never be shown.
func NormalizeCandidate(source, rawName string) (storedName string, displayName string, score int, ok bool) {
	source = strings.ToLower(strings.TrimSpace(source))
	name := strings.TrimSuffix(strings.TrimSpace(rawName), ".")
	if name == "" {
		return "", "", 0, false
	}

	stored := name
	if source == SourceReverseDNS {
		stored = strings.ToLower(stored)
	}

	display := stored
	if strings.Contains(display, ".") && !strings.ContainsAny(display, " \t") {
		if label, _, _ := strings.Cut(display, "."); label != "" {
			display = label
		}
	}

	s := scoreCandidate(source, stored, display)
	if s < 0 {
		return stored, display, s, false
	}
	return stored, display, s, true
}

// Best returns the highest scoring candidate, with Name set to its display label.
func Best(candidates []Candidate) (Candidate, bool) {
	best := scoredCandidate{Score: -1_000_000}

	for _, c := range candidates {
		stored, display, score, ok := NormalizeCandidate(c.Source, c.Name)
		if !ok || score < MinScore {
			continue
		}
		next := scoredCandidate{
			Source:      strings.ToLower(strings.TrimSpace(c.Source)),
			StoredName:  stored,
			DisplayName: display,
			Score:       score,
		}
		if betterCandidate(next, best) {
			best = next
		}
	}

	if best.Score < MinScore || strings.TrimSpace(best.DisplayName) == "" {
		return Candidate{}, false
	}
	return Candidate{Name: best.DisplayName, Source: best.Source}, true
}

func betterCandidate(a, b scoredCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if len(a.DisplayName) != len(b.DisplayName) {
		return len(a.DisplayName) < len(b.DisplayName)
	}
	if a.DisplayName != b.DisplayName {
		return a.DisplayName < b.DisplayName
	}
	return a.StoredName < b.StoredName
}

func scoreCandidate(source, stored, display string) int {
	normalized := strings.ToLower(stored)
	if looksGarbage(normalized) {
		return -1
	}

	base := 50
	switch source {
	case SourceManual:
		base = 100
	case SourceSNMP:
		// sysName is what the operator configured on the box.
		base = 92
	case SourceReverseDNS:
		base = 88
	case SourceOSPF:
		base = 84
	}

	if len(display) < 2 {
		base -= 50
	}
	if strings.ContainsAny(display, " \t") {
		base -= 25
	}
	if !looksHostnameLabel(display) {
		base -= 20
	}
	if strings.HasSuffix(normalized, ".local") || strings.HasSuffix(normalized, ".localdomain") {
		base -= 5
	}
	return base
}

func looksHostnameLabel(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func looksGarbage(normalized string) bool {
	if normalized == "" {
		return true
	}
	if strings.HasSuffix(normalized, "in-addr.arpa") || strings.HasSuffix(normalized, "ip6.arpa") {
		return true
	}
	switch normalized {
	case "localdomain", "localhost", "router", "switch", "unknown":
		return true
	}
	return false
}
