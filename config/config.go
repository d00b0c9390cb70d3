// Package config holds the construction options for a JSONLT table: lock
// acquisition deadline, size guards, and parser profile. Per spec §6 these
// are always passed as construction options, never read from the environment.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	units "github.com/docker/go-units"
	"github.com/mitchellh/mapstructure"

	"github.com/jsonlt/jsonlt/jsonltcodec"
)

// Options configures a Table or Transaction's behavior around locking and
// size guards (spec §5 "Size limits", §4.1 "optional deadline").
type Options struct {
	// LockTimeout bounds how long a lock acquisition blocks before failing
	// with a KindLock error. Zero means block indefinitely.
	LockTimeout time.Duration `json:"lock_timeout"`
	// MaxLineBytes rejects a put whose encoded line would exceed this many
	// bytes. Zero means unlimited.
	MaxLineBytes int `json:"max_line_bytes"`
	// MaxFileBytes rejects a put that would grow the file past this size.
	// Zero means unlimited.
	MaxFileBytes int64 `json:"max_file_bytes"`
	// ProfileName selects the parser profile used when reading: "strict" or
	// "lenient". Output is always strict regardless of this setting.
	ProfileName string `json:"profile"`
}

// DefaultOptions returns the engine's default construction options: no lock
// timeout, no size guards, strict parsing.
func DefaultOptions() Options {
	return Options{
		LockTimeout:  0,
		MaxLineBytes: 0,
		MaxFileBytes: 0,
		ProfileName:  "strict",
	}
}

// Profile resolves ProfileName to a jsonltcodec.Profile, defaulting to Strict
// for an empty or unrecognized name.
func (o Options) Profile() jsonltcodec.Profile {
	if o.ProfileName == "lenient" {
		return jsonltcodec.Lenient
	}
	return jsonltcodec.Strict
}

// LoadOptions reads Options from a JSON file, falling back to defaults if
// path is empty or the file does not exist — mirroring the teacher's
// LoadConfig fallback behavior.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path supplied by caller/CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return Options{}, errors.Wrapf(err, "read options file %s", path)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "parse options file %s", path)
	}
	return opts, nil
}

// ApplyOverrides decodes a generic map of overrides (as a CLI tool's
// "--set key=value" flags would assemble) on top of base, leaving fields not
// present in overrides untouched.
func ApplyOverrides(base Options, overrides map[string]any) (Options, error) {
	cfg := base
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "json",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Options{}, errors.Wrap(err, "build options decoder")
	}
	if err := decoder.Decode(overrides); err != nil {
		return Options{}, errors.Wrap(err, "apply option overrides")
	}
	return cfg, nil
}

// ParseSize parses a human-readable size such as "10MB" into bytes, the way
// a --max-file-size CLI flag would be read.
func ParseSize(s string) (int64, error) {
	n, err := units.FromHumanSize(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse size %q", s)
	}
	return n, nil
}

// FormatSize renders n bytes in human-readable form for CLI output.
func FormatSize(n int64) string {
	return units.HumanSize(float64(n))
}
