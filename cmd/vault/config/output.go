package configcmder

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/papercomputeco/vectorvault/pkg/cliui"
	"github.com/papercomputeco/vectorvault/pkg/config"
)

// secretKeys hold connection strings that may embed a password.
var secretKeys = map[string]bool{
	"storage.postgres_dsn": true,
}

func writeTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(target))
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

// displayValue renders a value for the terminal, masking the password of a
// DSN key.
func displayValue(key, value string) string {
	if value == "" {
		return cliui.DimStyle.Render("<not set>")
	}
	return cliui.ValueStyle.Render(masked(key, value))
}

func masked(key, value string) string {
	if secretKeys[key] {
		return redactDSN(value)
	}
	return value
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

// section returns the TOML table a dotted key lives in.
func section(key string) string {
	s, _, _ := strings.Cut(key, ".")
	return s
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}
