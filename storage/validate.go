package storage

import (
	"net"
	"regexp"
	"strings"

	"litexa.dev/litexa/common"
)

var (
	bucketLabelPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
	pathNamePattern    = regexp.MustCompile(`^[0-9a-zA-Z_\-./]*$`)
)

// ValidateBucketName checks name against the DNS-compatible S3 bucket naming
// rules: 3 to 63 characters, dot-separated labels of lowercase letters, digits
// and hyphens, each label starting and ending with a letter or digit, and not
// shaped like an IPv4 address.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return common.NewConfigurationError("bucket name", name, "must be between 3 and 63 characters long")
	}
	if net.ParseIP(name) != nil {
		return common.NewConfigurationError("bucket name", name, "must not be formatted as an IP address")
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return common.NewConfigurationError("bucket name", name, "must not contain empty labels or leading, trailing or adjacent dots")
		}
		if !bucketLabelPattern.MatchString(label) {
			return common.NewConfigurationError("bucket name", name,
				"labels may only contain lowercase letters, digits and hyphens and must start and end with a letter or digit")
		}
	}
	return nil
}

// ValidatePathName rejects keys containing characters outside [0-9a-zA-Z_-./].
func ValidatePathName(path string) error {
	if !pathNamePattern.MatchString(path) {
		return common.NewPathValidationError(path, "may only contain letters, digits, '_', '-', '.' and '/'")
	}
	return nil
}
