package deploy

import (
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mitchellh/mapstructure"

	"litexa.dev/litexa/common"
)

// ReservedParamKeys are managed by the uploader and may not appear in
// configured upload params.
var ReservedParamKeys = []string{"Key", "Body", "ContentType", "ACL"}

// DefaultACL is applied to every uploaded asset.
const DefaultACL = types.ObjectCannedACLPublicRead

// ObjectParams are the per-object PutObject fields an asset set may set.
// Timestamps are RFC 3339 strings in configuration.
type ObjectParams struct {
	CacheControl              string            `mapstructure:"CacheControl"`
	ContentDisposition        string            `mapstructure:"ContentDisposition"`
	ContentEncoding           string            `mapstructure:"ContentEncoding"`
	ContentLanguage           string            `mapstructure:"ContentLanguage"`
	Expires                   time.Time         `mapstructure:"Expires"`
	Metadata                  map[string]string `mapstructure:"Metadata"`
	StorageClass              string            `mapstructure:"StorageClass"`
	Tagging                   string            `mapstructure:"Tagging"`
	WebsiteRedirectLocation   string            `mapstructure:"WebsiteRedirectLocation"`
	GrantFullControl          string            `mapstructure:"GrantFullControl"`
	GrantRead                 string            `mapstructure:"GrantRead"`
	GrantReadACP              string            `mapstructure:"GrantReadACP"`
	GrantWriteACP             string            `mapstructure:"GrantWriteACP"`
	ServerSideEncryption      string            `mapstructure:"ServerSideEncryption"`
	SSEKMSKeyId               string            `mapstructure:"SSEKMSKeyId"`
	SSEKMSEncryptionContext   string            `mapstructure:"SSEKMSEncryptionContext"`
	SSECustomerAlgorithm      string            `mapstructure:"SSECustomerAlgorithm"`
	SSECustomerKey            string            `mapstructure:"SSECustomerKey"`
	SSECustomerKeyMD5         string            `mapstructure:"SSECustomerKeyMD5"`
	BucketKeyEnabled          *bool             `mapstructure:"BucketKeyEnabled"`
	ChecksumAlgorithm         string            `mapstructure:"ChecksumAlgorithm"`
	ObjectLockMode            string            `mapstructure:"ObjectLockMode"`
	ObjectLockRetainUntilDate time.Time         `mapstructure:"ObjectLockRetainUntilDate"`
	ObjectLockLegalHoldStatus string            `mapstructure:"ObjectLockLegalHoldStatus"`
	ExpectedBucketOwner       string            `mapstructure:"ExpectedBucketOwner"`
	RequestPayer              string            `mapstructure:"RequestPayer"`
}

// ParseObjectParams decodes a configured params bag. Reserved keys and
// unknown keys are configuration errors.
func ParseObjectParams(raw map[string]interface{}) (ObjectParams, error) {
	var params ObjectParams
	if len(raw) == 0 {
		return params, nil
	}

	var reserved []string
	for key := range raw {
		for _, r := range ReservedParamKeys {
			if strings.EqualFold(key, r) {
				reserved = append(reserved, key)
			}
		}
	}
	if len(reserved) > 0 {
		sort.Strings(reserved)
		return params, common.NewConfigurationError("uploadParams", strings.Join(reserved, ","),
			fmt.Sprintf("reserved keys %v are managed by the deployment and cannot be overridden", ReservedParamKeys))
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:           &params,
	})
	if err != nil {
		return params, err
	}
	if err := decoder.Decode(raw); err != nil {
		return params, common.NewConfigurationError("uploadParams", "", err.Error())
	}
	return params, nil
}

// Apply copies the params onto input. Reserved fields are never touched.
func (p ObjectParams) Apply(input *s3.PutObjectInput) {
	setString(&input.CacheControl, p.CacheControl)
	setString(&input.ContentDisposition, p.ContentDisposition)
	setString(&input.ContentEncoding, p.ContentEncoding)
	setString(&input.ContentLanguage, p.ContentLanguage)
	setTime(&input.Expires, p.Expires)
	if len(p.Metadata) > 0 {
		input.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			input.Metadata[k] = v
		}
	}
	if p.StorageClass != "" {
		input.StorageClass = types.StorageClass(p.StorageClass)
	}
	setString(&input.Tagging, p.Tagging)
	setString(&input.WebsiteRedirectLocation, p.WebsiteRedirectLocation)

	setString(&input.GrantFullControl, p.GrantFullControl)
	setString(&input.GrantRead, p.GrantRead)
	setString(&input.GrantReadACP, p.GrantReadACP)
	setString(&input.GrantWriteACP, p.GrantWriteACP)

	if p.ServerSideEncryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(p.ServerSideEncryption)
	}
	setString(&input.SSEKMSKeyId, p.SSEKMSKeyId)
	setString(&input.SSEKMSEncryptionContext, p.SSEKMSEncryptionContext)
	setString(&input.SSECustomerAlgorithm, p.SSECustomerAlgorithm)
	setString(&input.SSECustomerKey, p.SSECustomerKey)
	setString(&input.SSECustomerKeyMD5, p.SSECustomerKeyMD5)
	if p.BucketKeyEnabled != nil {
		input.BucketKeyEnabled = aws.Bool(*p.BucketKeyEnabled)
	}
	if p.ChecksumAlgorithm != "" {
		input.ChecksumAlgorithm = types.ChecksumAlgorithm(p.ChecksumAlgorithm)
	}

	if p.ObjectLockMode != "" {
		input.ObjectLockMode = types.ObjectLockMode(p.ObjectLockMode)
	}
	setTime(&input.ObjectLockRetainUntilDate, p.ObjectLockRetainUntilDate)
	if p.ObjectLockLegalHoldStatus != "" {
		input.ObjectLockLegalHoldStatus = types.ObjectLockLegalHoldStatus(p.ObjectLockLegalHoldStatus)
	}
	setString(&input.ExpectedBucketOwner, p.ExpectedBucketOwner)
	if p.RequestPayer != "" {
		input.RequestPayer = types.RequestPayer(p.RequestPayer)
	}
}

func setString(dst **string, value string) {
	if value != "" {
		*dst = aws.String(value)
	}
}

func setTime(dst **time.Time, value time.Time) {
	if !value.IsZero() {
		*dst = aws.Time(value)
	}
}

var extraContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".json": "application/json",
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
}

func init() {
	for ext, typ := range extraContentTypes {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// ContentType returns the MIME type for name based on its extension.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if typ := mime.TypeByExtension(ext); typ != "" {
		return typ
	}
	return "application/octet-stream"
}
