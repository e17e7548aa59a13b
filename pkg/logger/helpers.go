package logger

// LogRateLimit logs rate limiting events
func LogRateLimit(endpoint string, cooldownSeconds int) {
	GetLogger().WithFields(map[string]interface{}{
		"endpoint":         endpoint,
		"cooldown_seconds": cooldownSeconds,
		"action":           "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogScanProgress logs scan progress at a coarse granularity
func LogScanProgress(username string, checked, total, inactive int) {
	GetLogger().WithFields(map[string]interface{}{
		"current_account": username,
		"checked":         checked,
		"total":           total,
		"inactive_found":  inactive,
	}).Info("Scan progress")
}

// LogUnfollow logs the outcome of a single unfollow attempt
func LogUnfollow(username, method string, success bool, err error) {
	l := GetLogger().WithFields(map[string]interface{}{
		"username": username,
		"method":   method,
		"success":  success,
	})
	if err != nil {
		l.WithError(err).Warn("Unfollow attempt failed")
		return
	}
	if success {
		l.Info("Unfollowed")
	} else {
		l.Warn("Unfollow skipped")
	}
}
