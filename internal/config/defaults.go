package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultThanksMessage    = "Thanks for sending statistics about your usage of Delta Chat to us!"
	DefaultRejectionMessage = "Sorry, I couldn't understand your message.\n\nI am a bot for receiving statistics about your usage of Delta Chat. All other messages will be ignored."
	DefaultReaction         = "❤️"
)

var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"transport.kind":                      "deltachat",
	"transport.deltachat.rpc_server_path": "deltachat-rpc-server",
	"transport.deltachat.accounts_dir":    "accounts",
	"transport.telegram.token":            "",
	"transport.telegram.cache_dir":        "cache/telegram",
	"transport.telegram.cache_max_age":    time.Hour,

	"reports.dir":                  "reports",
	"reports.max_attachment_bytes": 1 << 20,
	"reports.lock_timeout":         10 * time.Second,
	"reports.temp_max_age":         time.Hour,

	"database.path": "ledger.db",

	"accounts.delete_server_after": "1",
	"accounts.delete_device_after": "3600",

	"messages.thanks":    DefaultThanksMessage,
	"messages.rejection": DefaultRejectionMessage,
	"messages.reaction":  DefaultReaction,

	"scheduler.tasks.sql_maintenance.enabled":         true,
	"scheduler.tasks.sql_maintenance.schedule":        "0 0 4 * * 0",
	"scheduler.tasks.temp_sweep.enabled":              true,
	"scheduler.tasks.temp_sweep.schedule":             "0 */30 * * * *",
	"scheduler.tasks.record_audit.enabled":            true,
	"scheduler.tasks.record_audit.schedule":           "0 0 3 * * *",
	"scheduler.tasks.attachment_cache_prune.enabled":  true,
	"scheduler.tasks.attachment_cache_prune.schedule": "0 */15 * * * *",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
