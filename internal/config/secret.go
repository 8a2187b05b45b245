package config

import "log/slog"

const redacted = "***REDACTED***"

// SecretString holds a credential that must never reach logs or JSON output.
// fmt and encoding/json both see a placeholder; Unmask returns the value.
type SecretString string

func (s SecretString) String() string {
	return redacted
}

// MarshalJSON always encodes the placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue keeps slog from printing the raw value.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Unmask returns the raw value. Use only when building outbound headers.
func (s SecretString) Unmask() string {
	return string(s)
}
