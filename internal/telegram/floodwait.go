package telegram

import (
	"fmt"
	"strings"
)

// floodWaitSeconds parses the wait duration out of a FLOOD_WAIT_<n> error.
// Matching on the error string avoids deep coupling to gotd error types.
func floodWaitSeconds(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	str := err.Error()
	idx := strings.Index(str, "FLOOD_WAIT_")
	if idx < 0 {
		return 0, false
	}
	var seconds int
	rest := strings.TrimSpace(str[idx+len("FLOOD_WAIT_"):])
	if _, scanErr := fmt.Sscanf(rest, "%d", &seconds); scanErr != nil {
		return 0, false
	}
	return seconds, true
}
