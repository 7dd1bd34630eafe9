package s3remote

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	BucketName   string `mapstructure:"bucket_name"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	Prefix       string `mapstructure:"prefix"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	QuotaBytes   int64  `mapstructure:"quota_bytes"`
}

func (c *Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
		}
	}
	if strings.Contains(c.Prefix, "//") {
		return fmt.Errorf("invalid prefix %q", c.Prefix)
	}
	return nil
}
