package config

import (
	"os"
	"strconv"
	"strings"
)

// GetAllSettings returns a map of the non-secret settings currently loaded in memory.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":                    Global.App.Version,
		"app_debug":                      Global.App.Debug,
		"default_timezone":               Global.App.DefaultTimezone,
		"scheduler_enabled":              Global.Scheduler.Enabled,
		"scheduler_interval_seconds":     int(Global.Scheduler.Interval.Seconds()),
		"scheduler_force_post_now":       Global.Scheduler.ForcePostNow,
		"scheduler_ignore_window":        Global.Scheduler.IgnoreWindow,
		"scheduler_max_recovery_retries": Global.Scheduler.MaxRecoveryRetries,
		"session_backend":                Global.Session.Backend,
		"mirror_backend":                 Global.Mirror.Backend,
		"ai_caption_provider":            Global.AI.CaptionProvider,
		"valkey_enabled":                 Global.Valkey.Enabled,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}
