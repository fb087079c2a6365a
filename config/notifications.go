package config

import (
	"fmt"
	"time"

	"github.com/buildwithgrove/ledgerclient/config/utils"
)

// NotificationsConfig configures the delivery of write lifecycle notifications.
// Notifications are always available to in-process subscribers.
type NotificationsConfig struct {
	// ReportURL is optional. If set, every notification is posted to it as JSON.
	ReportURL string `yaml:"report_url"`

	// ReportTimeout bounds each post.
	ReportTimeout time.Duration `yaml:"report_timeout"`
}

func (c NotificationsConfig) validate() error {
	if c.ReportURL != "" && !utils.IsValidURL(c.ReportURL, "http", "https") {
		return fmt.Errorf("invalid report URL %q", c.ReportURL)
	}
	return nil
}
