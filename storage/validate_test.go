package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"litexa.dev/litexa/common"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{name: "Simple", bucket: "my-bucket", wantErr: false},
		{name: "DottedLabels", bucket: "my-bucket.name1", wantErr: false},
		{name: "MinLength", bucket: "abc", wantErr: false},
		{name: "MaxLength", bucket: strings.Repeat("a", 63), wantErr: false},
		{name: "DigitsOnlyLabel", bucket: "123.bucket", wantErr: false},
		{name: "TooShort", bucket: "ab", wantErr: true},
		{name: "Empty", bucket: "", wantErr: true},
		{name: "TooLong", bucket: strings.Repeat("a", 64), wantErr: true},
		{name: "Uppercase", bucket: "My-Bucket", wantErr: true},
		{name: "Underscore", bucket: "my_bucket", wantErr: true},
		{name: "LeadingHyphen", bucket: "-bucket", wantErr: true},
		{name: "TrailingHyphen", bucket: "bucket-", wantErr: true},
		{name: "LeadingDot", bucket: ".bucket", wantErr: true},
		{name: "TrailingDot", bucket: "bucket.", wantErr: true},
		{name: "AdjacentDots", bucket: "my..bucket", wantErr: true},
		{name: "HyphenBeforeDot", bucket: "my-.bucket", wantErr: true},
		{name: "IPv4Shape", bucket: "192.168.5.4", wantErr: true},
		{name: "Space", bucket: "my bucket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrInvalidConfiguration))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePathName(t *testing.T) {
	assert.NoError(t, ValidatePathName("a/b-C_1.2"))
	assert.NoError(t, ValidatePathName("project/development/en-US/icon-108.png"))

	for _, bad := range []string{"a b", "a+b", "ä.png", "a\\b", "a?b", "a%20b"} {
		err := ValidatePathName(bad)
		assert.Error(t, err, bad)
		assert.True(t, errors.Is(err, common.ErrPathValidation), bad)
		assert.True(t, errors.Is(err, common.ErrInvalidConfiguration), bad)
	}
}
