package config

import (
	"strings"
)

// normalize expands and cleans path fields and trims free-form strings so
// validation operates on canonical values.
func (c *Config) normalize() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return err
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.ArtifactsDir, err = expandPath(c.Paths.ArtifactsDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Paths.MetricsBind = strings.TrimSpace(c.Paths.MetricsBind)
	c.Events.NtfyTopic = strings.TrimSpace(c.Events.NtfyTopic)
	c.Events.NATSURL = strings.TrimSpace(c.Events.NATSURL)
	c.Events.NATSSubject = strings.TrimSpace(c.Events.NATSSubject)
	if c.Events.NATSSubject == "" {
		c.Events.NATSSubject = defaultNATSSubject
	}
	c.Fingerprints.FpcalcBinary = strings.TrimSpace(c.Fingerprints.FpcalcBinary)

	for i := range c.Triggers {
		c.Triggers[i].Phase = strings.ToLower(strings.TrimSpace(c.Triggers[i].Phase))
		c.Triggers[i].Run = strings.ToLower(strings.TrimSpace(c.Triggers[i].Run))
		c.Triggers[i].After = strings.ToLower(strings.TrimSpace(c.Triggers[i].After))
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
