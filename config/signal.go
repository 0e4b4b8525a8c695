package config

import (
	"fmt"
	"os"

	"github.com/stackup-dev/stackup/signals"
)

// Signal is a stop signal named in the settings.
type Signal struct {
	S os.Signal
}

// ParseSignal parses the signal with the given name.
func ParseSignal(name string) (Signal, error) {
	sig, err := signals.ToSignal(name)
	if err != nil {
		return Signal{}, err
	}
	return Signal{S: sig}, nil
}

// ParseSignals parses a stop sequence. An empty sequence is valid: the
// supervisor falls back to its default.
func ParseSignals(names []string) ([]Signal, error) {
	sigs := make([]Signal, 0, len(names))
	for i, name := range names {
		sig, err := ParseSignal(name)
		if err != nil {
			return nil, fmt.Errorf("stop signal %d: %w", i+1, err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (s Signal) String() string {
	return signals.Name(s.S)
}
