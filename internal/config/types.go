package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Duration is a time.Duration that koanf can decode from YAML and env
// strings. Bare integers are read as seconds, so FETCH_TIMEOUT=90 works.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		s = strconv.FormatInt(n, 10) + "s"
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

const redacted = "[REDACTED]"

var errRedactedSecret = errors.New("refusing to load redacted secret placeholder")

// Secret holds a credential. Every formatting and marshaling path prints
// [REDACTED]; only Value returns the plaintext.
type Secret string

func (s Secret) masked() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) String() string   { return s.masked() }
func (s Secret) GoString() string { return "config.Secret(" + redacted + ")" }
func (s Secret) Value() string    { return string(s) }
func (s Secret) IsSet() bool      { return s != "" }

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.masked()), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.masked())
}

// UnmarshalText accepts the raw credential. The redacted placeholder is
// rejected so a dumped config cannot be loaded back as real credentials.
func (s *Secret) UnmarshalText(text []byte) error {
	if string(text) == redacted {
		return errRedactedSecret
	}
	*s = Secret(text)
	return nil
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(raw))
}
