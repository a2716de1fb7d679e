package stats

import (
	"fmt"
	"strings"
)

// CommandType names one of the supported text statistics commands.
type CommandType string

const (
	CommandCount       CommandType = "count"
	CommandAverage     CommandType = "average"
	CommandWordFreq    CommandType = "wordfreq"
	CommandLongest     CommandType = "longest"
	CommandReadability CommandType = "readability"
)

// AllCommandTypes returns the supported commands in canonical order.
func AllCommandTypes() []CommandType {
	return []CommandType{
		CommandCount,
		CommandAverage,
		CommandWordFreq,
		CommandLongest,
		CommandReadability,
	}
}

// ParseCommandType maps a config/CLI string to a CommandType.
func ParseCommandType(s string) (CommandType, error) {
	switch CommandType(strings.ToLower(strings.TrimSpace(s))) {
	case CommandCount:
		return CommandCount, nil
	case CommandAverage:
		return CommandAverage, nil
	case CommandWordFreq:
		return CommandWordFreq, nil
	case CommandLongest:
		return CommandLongest, nil
	case CommandReadability:
		return CommandReadability, nil
	default:
		return "", fmt.Errorf("unknown stats command %q", s)
	}
}

// ParseCommandTypes maps a list of strings, preserving input order.
func ParseCommandTypes(in []string) ([]CommandType, error) {
	out := make([]CommandType, 0, len(in))
	for _, s := range in {
		cmd, err := ParseCommandType(s)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}
