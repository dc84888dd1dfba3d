package logcat

import "strings"

// RepairLine strips every carriage return from a transport line. Some
// transports encode "\r\n" as "\r\r\n", which leaves a stray "\r" behind once
// the line terminator has been removed.
func RepairLine(line string) string {
	if !strings.ContainsRune(line, '\r') {
		return line
	}
	return strings.ReplaceAll(line, "\r", "")
}
