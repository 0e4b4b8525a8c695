// Package cast coerces loosely typed configuration values.
package cast

import (
	"fmt"

	"github.com/spf13/cast"
)

const (
	MinPort = 1
	MaxPort = 65535
)

// ToPortE converts i to a TCP port number, rejecting values outside the
// valid range.
func ToPortE(i interface{}) (int, error) {
	if s, ok := i.(string); ok && s == "" {
		return 0, fmt.Errorf("empty port value")
	}
	port, err := cast.ToIntE(i)
	if err != nil {
		return 0, fmt.Errorf("invalid port %v: %w", i, err)
	}
	if port < MinPort || port > MaxPort {
		return 0, fmt.Errorf("port %d out of range %d-%d", port, MinPort, MaxPort)
	}
	return port, nil
}
