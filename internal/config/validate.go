package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBrowser(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateBrowser() error {
	seen := make(map[string]struct{}, len(c.Browser.Profiles))
	for i, profile := range c.Browser.Profiles {
		if profile.Name == "" {
			return fmt.Errorf("browser.profiles[%d].name must be set", i)
		}
		if _, dup := seen[profile.Name]; dup {
			return fmt.Errorf("browser.profiles: duplicate name %q", profile.Name)
		}
		seen[profile.Name] = struct{}{}
		if strings.TrimSpace(profile.UserDataDir) == "" {
			return fmt.Errorf("browser.profiles[%d].user_data_dir must be set", i)
		}
	}
	if name := c.Browser.ActiveProfile; name != "" {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("browser.active_profile %q does not name a configured profile", name)
		}
	}
	return nil
}

func (c *Config) validateEncoder() error {
	for name, preset := range c.Encoder.Presets {
		if strings.TrimSpace(name) == "" {
			return errors.New("encoder.presets: preset name must not be empty")
		}
		for i, zone := range preset.Zones {
			if zone.X < 0 || zone.Y < 0 {
				return fmt.Errorf("encoder.presets.%s.zones[%d]: x and y must be >= 0", name, i)
			}
			if zone.W < 1 || zone.H < 1 {
				return fmt.Errorf("encoder.presets.%s.zones[%d]: w and h must be >= 1", name, i)
			}
		}
	}
	if active := c.Encoder.ActivePreset; active != "" {
		if _, ok := c.Encoder.Presets[active]; !ok {
			return fmt.Errorf("encoder.active_preset %q does not name a configured preset", active)
		}
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.GroupSize < 1 {
		return errors.New("merge.group_size must be >= 1")
	}
	return nil
}

func (c *Config) validateUpload() error {
	seen := make(map[string]struct{}, len(c.Upload.Channels))
	for i, channel := range c.Upload.Channels {
		if channel.Name == "" {
			return fmt.Errorf("upload.channels[%d].name must be set", i)
		}
		if _, dup := seen[channel.Name]; dup {
			return fmt.Errorf("upload.channels: duplicate name %q", channel.Name)
		}
		seen[channel.Name] = struct{}{}
	}
	if name := c.Upload.ActiveChannel; name != "" {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("upload.active_channel %q does not name a configured channel", name)
		}
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	days := map[string]int{
		"maintenance.retention_days.downloads": c.Maintenance.RetentionDays.Downloads,
		"maintenance.retention_days.blurred":   c.Maintenance.RetentionDays.Blurred,
		"maintenance.retention_days.merged":    c.Maintenance.RetentionDays.Merged,
	}
	for key, value := range days {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if !c.Notifications.Enabled {
		return nil
	}
	if c.Notifications.BotToken == "" {
		return errors.New("notifications.bot_token must be set when notifications.enabled is true")
	}
	if c.Notifications.ChatID == "" {
		return errors.New("notifications.chat_id must be set when notifications.enabled is true")
	}
	return nil
}
