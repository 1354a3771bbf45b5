package version

import (
	"strings"
	"testing"
)

func saveAndRestore() func() {
	origVersion, origCommit, origBranch, origBuildTime, origGoVersion :=
		Version, GitCommit, GitBranch, BuildTime, GoVersion
	return func() {
		Version = origVersion
		GitCommit = origCommit
		GitBranch = origBranch
		BuildTime = origBuildTime
		GoVersion = origGoVersion
	}
}

func TestGet_Defaults(t *testing.T) {
	defer saveAndRestore()()
	Version = "dev"
	GitCommit, GitBranch, BuildTime, GoVersion = "", "", "", ""

	info := Get()
	if info.Version != "dev" {
		t.Errorf("expected version 'dev', got %q", info.Version)
	}
	if info.IsRelease {
		t.Error("dev should not be a release")
	}
	if info.GoVersion == "" {
		t.Error("expected go version from build info")
	}
}

func TestGet_LinkerValues(t *testing.T) {
	defer saveAndRestore()()
	Version = "1.2.0"
	BuildTime = "2026-03-15T10:30:00Z"
	GitCommit = "abc1234def"
	GoVersion = "go1.26.0"

	info := Get()
	if !info.IsRelease {
		t.Error("1.2.0 should be a release")
	}
	if info.GitCommit != "abc1234" {
		t.Errorf("expected truncated commit 'abc1234', got %q", info.GitCommit)
	}
	if info.GoVersion != "go1.26.0" {
		t.Errorf("expected 'go1.26.0', got %q", info.GoVersion)
	}
	if info.BuildDate.Year() != 2026 {
		t.Errorf("expected build year 2026, got %d", info.BuildDate.Year())
	}
}

func TestGet_DirtyVersion(t *testing.T) {
	defer saveAndRestore()()
	Version = "1.0.0-dirty"
	if Get().IsRelease {
		t.Error("dirty version should not be a release")
	}
}

func TestShort(t *testing.T) {
	defer saveAndRestore()()
	Version = "1.0.0"
	GitCommit = "abc1234"
	BuildTime = "2026-01-01T00:00:00Z"

	sv := Short()
	if !strings.HasPrefix(sv, "1.0.0-abc1234") {
		t.Errorf("expected '1.0.0-abc1234' prefix, got %q", sv)
	}
	if ua := UserAgent(); ua != "taskflow/"+sv {
		t.Errorf("user agent = %q", ua)
	}
}

func TestFull_Branches(t *testing.T) {
	defer saveAndRestore()()
	Version = "1.0.0"
	GitCommit = "abc1234"
	BuildTime = "2026-01-15T10:30:00Z"

	GitBranch = "main"
	fv := Full()
	if strings.Contains(fv, "main") {
		t.Errorf("main branch should not appear, got %q", fv)
	}
	if !strings.Contains(fv, "built") {
		t.Errorf("expected build date, got %q", fv)
	}

	GitBranch = "feature/replay"
	if fv := Full(); !strings.Contains(fv, "feature/replay") {
		t.Errorf("expected feature branch, got %q", fv)
	}
}
