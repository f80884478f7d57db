// internal/oracle/answer.go
package oracle

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// ParseAnswer decodes a coordinate answer payload. Three wire shapes occur
// in practice and all are accepted:
//
//	coordinates:x=50,y=50;x=120,y=50
//	50,50|120,50
//	[{"x":"50","y":"50"},{"x":120,"y":50}]
//
// Anything else, including an empty coordinate list, is a malformed answer.
func ParseAnswer(raw string) ([]schemas.ImagePoint, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &SolveError{Reason: ReasonMalformed, Detail: "empty answer payload"}
	}

	var (
		points []schemas.ImagePoint
		err    error
	)

	switch {
	case strings.HasPrefix(trimmed, "["):
		points, err = parseJSONAnswer(trimmed)
	case strings.Contains(trimmed, "x="):
		points, err = parseKeyValueAnswer(trimmed)
	default:
		points, err = parsePairAnswer(trimmed)
	}
	if err != nil {
		return nil, &SolveError{Reason: ReasonMalformed, Detail: err.Error()}
	}
	if len(points) == 0 {
		return nil, &SolveError{Reason: ReasonMalformed, Detail: "answer contains no coordinates"}
	}
	return points, nil
}

// flexInt accepts both quoted and bare JSON numbers, which the wire format
// mixes freely.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid coordinate value %q", s)
	}
	*f = flexInt(math.Round(v))
	return nil
}

func parseJSONAnswer(raw string) ([]schemas.ImagePoint, error) {
	var wire []struct {
		X flexInt `json:"x"`
		Y flexInt `json:"y"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("undecodable JSON answer: %w", err)
	}
	points := make([]schemas.ImagePoint, 0, len(wire))
	for _, p := range wire {
		points = append(points, schemas.ImagePoint{X: int(p.X), Y: int(p.Y)})
	}
	return points, nil
}

// parseKeyValueAnswer handles "coordinates:x=50,y=50;x=120,y=50".
func parseKeyValueAnswer(raw string) ([]schemas.ImagePoint, error) {
	body := raw
	if idx := strings.Index(strings.ToLower(raw), "coordinates:"); idx >= 0 {
		body = raw[idx+len("coordinates:"):]
	}

	var points []schemas.ImagePoint
	for _, group := range strings.Split(body, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}

		var (
			x, y       int
			sawX, sawY bool
		)
		for _, kv := range strings.Split(group, ",") {
			parts := strings.SplitN(strings.TrimSpace(kv), "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid coordinate pair %q", kv)
			}
			v, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid coordinate value %q", parts[1])
			}
			switch strings.ToLower(strings.TrimSpace(parts[0])) {
			case "x":
				x, sawX = v, true
			case "y":
				y, sawY = v, true
			default:
				return nil, fmt.Errorf("unknown coordinate key %q", parts[0])
			}
		}
		if !sawX || !sawY {
			return nil, fmt.Errorf("incomplete coordinate group %q", group)
		}
		points = append(points, schemas.ImagePoint{X: x, Y: y})
	}
	return points, nil
}

// parsePairAnswer handles "50,50|120,50".
func parsePairAnswer(raw string) ([]schemas.ImagePoint, error) {
	var points []schemas.ImagePoint
	for _, group := range strings.Split(raw, "|") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		parts := strings.Split(group, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid coordinate pair %q", group)
		}
		x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate value %q", parts[0])
		}
		y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate value %q", parts[1])
		}
		points = append(points, schemas.ImagePoint{X: x, Y: y})
	}
	return points, nil
}
