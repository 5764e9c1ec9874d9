// Package version describes the running litexa build: its own version, the
// VCS revision it was built from and the AWS SDK modules that talk to S3 and
// IAM during a deployment.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// ModulePath is the import path of this module.
const ModulePath = "litexa.dev/litexa"

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Component is one AWS SDK module linked into the binary.
type Component struct {
	Name    string `json:"name"`
	Module  string `json:"module"`
	Version string `json:"version"`
}

// Info is what `litexa version` reports.
type Info struct {
	Version   string      `json:"version"`
	GoVersion string      `json:"goVersion"`
	Revision  string      `json:"revision,omitempty"`
	Modified  bool        `json:"modified,omitempty"`
	AWS       []Component `json:"aws"`
}

// awsComponents lists the SDK modules a deployment depends on, in report order.
var awsComponents = []Component{
	{Name: "sdk", Module: "github.com/aws/aws-sdk-go-v2"},
	{Name: "s3", Module: "github.com/aws/aws-sdk-go-v2/service/s3"},
	{Name: "s3-manager", Module: "github.com/aws/aws-sdk-go-v2/feature/s3/manager"},
	{Name: "iam", Module: "github.com/aws/aws-sdk-go-v2/service/iam"},
}

// Get reads the build information embedded in the binary. Without it every
// field reports "unknown".
func Get() Info {
	info, ok := readBuildInfo()
	if !ok {
		return Info{Version: "unknown", GoVersion: "unknown", AWS: []Component{}}
	}

	modules := make(map[string]*debug.Module, len(info.Deps))
	for _, dep := range info.Deps {
		modules[dep.Path] = dep
	}

	result := Info{
		Version:   litexaVersion(info, modules[ModulePath]),
		GoVersion: info.GoVersion,
		AWS:       make([]Component, 0, len(awsComponents)),
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			result.Revision = setting.Value
			if len(result.Revision) > 12 {
				result.Revision = result.Revision[:12]
			}
		case "vcs.modified":
			result.Modified = setting.Value == "true"
		}
	}
	for _, c := range awsComponents {
		if dep, ok := modules[c.Module]; ok {
			c.Version = moduleVersion(dep)
			result.AWS = append(result.AWS, c)
		}
	}
	return result
}

// litexaVersion prefers the main module version; a binary embedding litexa
// as a library reports the dependency version instead.
func litexaVersion(info *debug.BuildInfo, embedded *debug.Module) string {
	if info.Path == ModulePath {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
		return "dev"
	}
	if embedded != nil {
		return moduleVersion(embedded)
	}
	return "unknown"
}

func moduleVersion(m *debug.Module) string {
	if m.Replace != nil {
		return m.Replace.Version + " (replaced)"
	}
	return m.Version
}

// String renders the one-line summary, e.g.
// "litexa v0.1.0 (go1.24.7, rev 3f2a9c1d7e44, modified)".
func (i Info) String() string {
	details := []string{i.GoVersion}
	if i.Revision != "" {
		details = append(details, "rev "+i.Revision)
	}
	if i.Modified {
		details = append(details, "modified")
	}
	return fmt.Sprintf("litexa %s (%s)", i.Version, strings.Join(details, ", "))
}
