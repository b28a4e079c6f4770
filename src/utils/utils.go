package utils

import (
	"fmt"
	"io"
	"strings"

	"liftsim/src/car"
	"liftsim/src/types"
)

// StatusLine renders the run state on one line: pause flag, every car and the pending calls.
func StatusLine(snaps []car.Snapshot, calls []types.Call, paused bool) string {
	var sb strings.Builder
	if paused {
		sb.WriteString("PAUSED ")
	} else {
		sb.WriteString("RUNNING")
	}
	for _, snap := range snaps {
		fmt.Fprintf(&sb, " | Car %d: floor %d %s %d/%d", snap.ID, snap.Floor, snap.Dir, snap.Capacity-snap.FreeSeats, snap.Capacity)
		if len(snap.Stops) > 0 {
			fmt.Fprintf(&sb, " stops %v", snap.Stops)
		}
	}
	sb.WriteString(" | calls")
	if len(calls) == 0 {
		sb.WriteString(" none")
	}
	for _, c := range calls {
		sb.WriteString(" " + c.String())
	}
	return sb.String()
}

// PrintStatus is called when the status key is pressed. The terminal is in raw mode, so lines end in \r\n.
func PrintStatus(w io.Writer, line string) {
	fmt.Fprintf(w, "\r%s\r\n", line)
}
