package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuildInfo(t *testing.T, info *debug.BuildInfo, ok bool) {
	t.Helper()
	original := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, ok }
	t.Cleanup(func() { readBuildInfo = original })
}

func TestGet_Version(t *testing.T) {
	tests := []struct {
		name string
		info *debug.BuildInfo
		ok   bool
		want string
	}{
		{"no build info", nil, false, "unknown"},
		{"tagged build", &debug.BuildInfo{Path: ModulePath, Main: debug.Module{Version: "v1.4.0"}}, true, "v1.4.0"},
		{"development build", &debug.BuildInfo{Path: ModulePath, Main: debug.Module{Version: "(devel)"}}, true, "dev"},
		{"embedded", &debug.BuildInfo{Path: "example.com/tool", Deps: []*debug.Module{{Path: ModulePath, Version: "v1.2.0"}}}, true, "v1.2.0"},
		{"embedded and replaced", &debug.BuildInfo{Path: "example.com/tool", Deps: []*debug.Module{
			{Path: ModulePath, Version: "v1.2.0", Replace: &debug.Module{Path: "../litexa", Version: "v1.3.0"}},
		}}, true, "v1.3.0 (replaced)"},
		{"absent", &debug.BuildInfo{Path: "example.com/tool"}, true, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildInfo(t, tt.info, tt.ok)
			assert.Equal(t, tt.want, Get().Version)
		})
	}
}

func TestGet_AWSComponents(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.24.7",
		Path:      ModulePath,
		Main:      debug.Module{Version: "v0.1.0"},
		Deps: []*debug.Module{
			{Path: "github.com/aws/aws-sdk-go-v2/service/iam", Version: "v1.38.1"},
			{Path: "go.etcd.io/bbolt", Version: "v1.4.3"},
			{Path: "github.com/aws/aws-sdk-go-v2/service/s3", Version: "v1.90.0"},
			{Path: "github.com/aws/aws-sdk-go-v2", Version: "v1.39.6"},
		},
	}, true)

	info := Get()
	require.Len(t, info.AWS, 3)
	assert.Equal(t, Component{Name: "sdk", Module: "github.com/aws/aws-sdk-go-v2", Version: "v1.39.6"}, info.AWS[0])
	assert.Equal(t, "s3", info.AWS[1].Name)
	assert.Equal(t, "iam", info.AWS[2].Name)
	assert.Equal(t, "v1.38.1", info.AWS[2].Version)
}

func TestGet_VCSSettings(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.24.7",
		Path:      ModulePath,
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "3f2a9c1d7e4455aa0b1c2d3e4f5a6b7c8d9e0f1a"},
			{Key: "vcs.modified", Value: "true"},
		},
	}, true)

	info := Get()
	assert.Equal(t, "3f2a9c1d7e44", info.Revision)
	assert.True(t, info.Modified)
	assert.Equal(t, "litexa dev (go1.24.7, rev 3f2a9c1d7e44, modified)", info.String())
}

func TestInfo_StringWithoutVCS(t *testing.T) {
	withBuildInfo(t, nil, false)
	info := Get()
	assert.Equal(t, "litexa unknown (unknown)", info.String())
	assert.Empty(t, info.AWS)
}
