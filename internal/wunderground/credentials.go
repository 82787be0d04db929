package wunderground

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrMissingCredentials = errors.New("missing station id or password")

// Credentials identify the station on the weather network.
type Credentials struct {
	StationID string
	Password  string
}

// String hides the password so credentials can be logged.
func (c Credentials) String() string {
	return fmt.Sprintf("station=%s password=***", c.StationID)
}

// LoadCredentials reads the station ID from the first line of path and the
// password from the second.
func LoadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("open credentials: %w", err)
	}
	defer func() { _ = f.Close() }()

	creds, err := ParseCredentials(f)
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", path, err)
	}
	return creds, nil
}

func ParseCredentials(r io.Reader) (Credentials, error) {
	sc := bufio.NewScanner(r)
	var lines []string
	for len(lines) < 2 && sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	if len(lines) < 2 || lines[0] == "" || lines[1] == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return Credentials{StationID: lines[0], Password: lines[1]}, nil
}
