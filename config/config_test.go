package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/jsonlt/jsonlt/jsonltcodec"
)

func TestDefaultOptionsAreStrictAndUnbounded(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, opts.Profile(), jsonltcodec.Strict)
	assert.Equal(t, opts.MaxLineBytes, 0)
	assert.Equal(t, opts.MaxFileBytes, int64(0))
}

func TestProfileFallsBackToStrictForUnknownName(t *testing.T) {
	opts := Options{ProfileName: "bogus"}
	assert.Equal(t, opts.Profile(), jsonltcodec.Strict)

	opts.ProfileName = "lenient"
	assert.Equal(t, opts.Profile(), jsonltcodec.Lenient)
}

func TestLoadOptionsMissingFileFallsBackToDefaults(t *testing.T) {
	opts, err := LoadOptions(filepath.Join(t.TempDir(), "missing.json"))
	assert.NilError(t, err)
	assert.DeepEqual(t, opts, DefaultOptions())

	opts, err = LoadOptions("")
	assert.NilError(t, err)
	assert.DeepEqual(t, opts, DefaultOptions())
}

func TestLoadOptionsReadsJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"profile":"lenient","max_line_bytes":4096}`), 0o640))

	opts, err := LoadOptions(path)
	assert.NilError(t, err)
	assert.Equal(t, opts.ProfileName, "lenient")
	assert.Equal(t, opts.MaxLineBytes, 4096)
}

func TestLoadOptionsRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{not json`), 0o640))

	_, err := LoadOptions(path)
	assert.ErrorContains(t, err, "parse options file")
}

func TestApplyOverridesDecodesWeaklyTypedValues(t *testing.T) {
	cfg, err := ApplyOverrides(DefaultOptions(), map[string]any{
		"max_line_bytes": "2048",
		"lock_timeout":   "5s",
		"profile":        "lenient",
	})
	assert.NilError(t, err)
	assert.Equal(t, cfg.MaxLineBytes, 2048)
	assert.Equal(t, cfg.LockTimeout, 5*time.Second)
	assert.Equal(t, cfg.ProfileName, "lenient")
}

func TestApplyOverridesLeavesUnmentionedFieldsUntouched(t *testing.T) {
	base := DefaultOptions()
	base.MaxFileBytes = 1 << 20

	cfg, err := ApplyOverrides(base, map[string]any{"profile": "lenient"})
	assert.NilError(t, err)
	assert.Equal(t, cfg.MaxFileBytes, int64(1<<20))
	assert.Equal(t, cfg.ProfileName, "lenient")
}

func TestParseAndFormatSizeRoundTrip(t *testing.T) {
	n, err := ParseSize("10MB")
	assert.NilError(t, err)
	assert.Equal(t, n, int64(10_000_000))
	assert.Equal(t, FormatSize(n), "10MB")

	_, err = ParseSize("not-a-size")
	assert.Assert(t, err != nil)
}
