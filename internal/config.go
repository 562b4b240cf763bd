package internal

import (
	"fmt"
	"strings"
)

// CharacterRune turns CHARACTER_REPLACEMENT into the rune used by the moderator.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// SplitOrigins parses ALLOWED_ORIGINS, a comma separated list.
func SplitOrigins(str string) []string {
	var origins []string
	for _, origin := range strings.Split(str, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
