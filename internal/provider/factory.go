package provider

import (
	"fmt"
	"strings"
)

// AvailableDrivers returns every gateway driver this module ships
func AvailableDrivers() []Driver {
	return []Driver{
		DriverMock,
		DriverDaraja,
		DriverRelay,
	}
}

// ParseDriver maps a config value onto a known driver
func ParseDriver(s string) (Driver, error) {
	d := Driver(strings.ToLower(strings.TrimSpace(s)))
	for _, available := range AvailableDrivers() {
		if available == d {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown gateway driver %q", s)
}
