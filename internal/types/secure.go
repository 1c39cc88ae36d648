package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString prevents accidental logging or serialization of sensitive
// configuration values (database URLs, gateway keys, SMTP credentials).
// String() and MarshalJSON() return a redacted placeholder; Unmask()
// retrieves the raw value where it is genuinely needed.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value. Limit call sites to the points
// where the secret leaves the process (HTTP Authorization headers,
// connection strings).
func (s SecretString) Unmask() string {
	return string(s)
}
