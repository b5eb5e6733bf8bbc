// Package roster parses free-text entrant lists typed by tournament
// organizers into teams.
//
// One entrant per line. A line containing "/" is a doubles or team entry:
// its members are the "/"-separated names, trimmed, while the entry keeps the
// line itself as its display name. Blank lines and lines with no usable name
// are skipped individually; a bad line never rejects the rest of the roster.
package roster

import "strings"

const separator = "/"

// Team is one parsed roster entry.
type Team struct {
	Name    string   `json:"name"`
	Players []string `json:"players"`
}

// Result is the outcome of parsing a roster.
type Result struct {
	Teams   []Team
	Skipped []int // 1-based line numbers that were discarded
}

// Parse splits text into teams.
func Parse(text string) Result {
	var res Result
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			// Trailing newline is not a skipped entry worth reporting.
			if i < len(lines)-1 || raw != "" {
				res.Skipped = append(res.Skipped, i+1)
			}
			continue
		}
		team, ok := parseLine(line)
		if !ok {
			res.Skipped = append(res.Skipped, i+1)
			continue
		}
		res.Teams = append(res.Teams, team)
	}
	return res
}

// Teams is Parse without the skip report.
func Teams(text string) []Team {
	return Parse(text).Teams
}

func parseLine(line string) (Team, bool) {
	if !strings.Contains(line, separator) {
		return Team{Name: line, Players: []string{line}}, true
	}
	var players []string
	for _, part := range strings.Split(line, separator) {
		if p := strings.TrimSpace(part); p != "" {
			players = append(players, p)
		}
	}
	if len(players) == 0 {
		return Team{}, false
	}
	return Team{Name: line, Players: players}, true
}
