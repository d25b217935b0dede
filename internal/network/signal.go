package network

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WirelessPath is the kernel's wireless statistics table.
const WirelessPath = "/proc/net/wireless"

// ErrNoWireless is returned by ReadRSSI when no wireless interface is listed.
var ErrNoWireless = errors.New("network: no wireless interface")

// ReadRSSI returns the signal level in dBm of the first wireless interface
// listed in the table at path.
func ReadRSSI(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for line := 0; sc.Scan(); line++ {
		if line < 2 {
			continue // two header lines
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("parse signal level %q: %w", fields[3], err)
		}
		return int(level), nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, ErrNoWireless
}
