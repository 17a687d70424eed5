// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package nspawn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSettings_DefaultProfile(t *testing.T) {
	got := RenderSettings("br0", DefaultProfile())
	want := `[Exec]
Boot=on

[Network]
Bridge=br0
`
	if got != want {
		t.Errorf("RenderSettings = %q, want %q", got, want)
	}
}

func TestRenderSettings_NilProfileMeansDefault(t *testing.T) {
	if RenderSettings("br0", nil) != RenderSettings("br0", DefaultProfile()) {
		t.Error("nil profile should render like the default profile")
	}
}

func TestRenderSettings_WithBinds(t *testing.T) {
	profile := &Profile{Binds: []string{"/srv/shared", "/srv/data:/data:ro"}}

	got := RenderSettings("vmbr0", profile)
	if !strings.Contains(got, "Bridge=vmbr0\n") {
		t.Errorf("settings missing bridge: %q", got)
	}
	if !strings.Contains(got, "[Files]\nBind=/srv/shared\nBind=/srv/data:/data:ro\n") {
		t.Errorf("settings missing binds: %q", got)
	}
}

func TestRenderDropin(t *testing.T) {
	profile := &Profile{MemoryMax: "4G", CPUQuota: "200%", TasksMax: 512}

	got := RenderDropin(profile)
	want := "[Service]\nMemoryMax=4G\nCPUQuota=200%\nTasksMax=512\n"
	if got != want {
		t.Errorf("RenderDropin = %q, want %q", got, want)
	}
}

func TestRenderDropin_NoLimitsMeansNoDropin(t *testing.T) {
	if got := RenderDropin(&Profile{Binds: []string{"/srv"}}); got != "" {
		t.Errorf("RenderDropin = %q, want empty for a profile without limits", got)
	}
	if got := RenderDropin(nil); got != "" {
		t.Errorf("RenderDropin(nil) = %q, want empty", got)
	}
}

func TestPaths(t *testing.T) {
	if got := ConfigPath("/etc/systemd/nspawn", "12"); got != "/etc/systemd/nspawn/12.nspawn" {
		t.Errorf("ConfigPath = %q", got)
	}
	if got := DropinDir("/etc/systemd/system", "12"); got != "/etc/systemd/system/systemd-nspawn@12.service.d" {
		t.Errorf("DropinDir = %q", got)
	}
	if got := DropinPath("/etc/systemd/system", "12"); got != "/etc/systemd/system/systemd-nspawn@12.service.d/50-hutch.conf" {
		t.Errorf("DropinPath = %q", got)
	}
}

func TestWriteConfig(t *testing.T) {
	nspawnDir := t.TempDir()
	dropinRoot := t.TempDir()
	profile := &Profile{MemoryMax: "2G"}

	if err := WriteConfig(nspawnDir, dropinRoot, "br0", "12", profile); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	settings, err := os.ReadFile(ConfigPath(nspawnDir, "12"))
	if err != nil {
		t.Fatalf("reading settings: %v", err)
	}
	if !strings.Contains(string(settings), "Bridge=br0") {
		t.Errorf("settings = %q", settings)
	}

	dropin, err := os.ReadFile(DropinPath(dropinRoot, "12"))
	if err != nil {
		t.Fatalf("reading drop-in: %v", err)
	}
	if string(dropin) != "[Service]\nMemoryMax=2G\n" {
		t.Errorf("drop-in = %q", dropin)
	}
}

func TestWriteConfig_RemovesStaleDropin(t *testing.T) {
	nspawnDir := t.TempDir()
	dropinRoot := t.TempDir()

	// First write with limits, then regenerate without. The drop-in
	// must not survive the limitless profile.
	if err := WriteConfig(nspawnDir, dropinRoot, "br0", "12", &Profile{TasksMax: 100}); err != nil {
		t.Fatalf("WriteConfig with limits: %v", err)
	}
	if err := WriteConfig(nspawnDir, dropinRoot, "br0", "12", DefaultProfile()); err != nil {
		t.Fatalf("WriteConfig without limits: %v", err)
	}

	if _, err := os.Stat(DropinDir(dropinRoot, "12")); !os.IsNotExist(err) {
		t.Error("stale drop-in directory survived regeneration")
	}
}

func TestMoveConfig(t *testing.T) {
	nspawnDir := t.TempDir()
	dropinRoot := t.TempDir()

	if err := WriteConfig(nspawnDir, dropinRoot, "br0", "12", &Profile{MemoryMax: "1G"}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := MoveConfig(nspawnDir, dropinRoot, "12", "40"); err != nil {
		t.Fatalf("MoveConfig: %v", err)
	}

	if _, err := os.Stat(ConfigPath(nspawnDir, "40")); err != nil {
		t.Errorf("settings not moved: %v", err)
	}
	if _, err := os.Stat(ConfigPath(nspawnDir, "12")); !os.IsNotExist(err) {
		t.Error("old settings file still present")
	}
	if _, err := os.Stat(DropinPath(dropinRoot, "40")); err != nil {
		t.Errorf("drop-in not moved: %v", err)
	}
}

func TestMoveConfig_MissingArtifactsSkipped(t *testing.T) {
	if err := MoveConfig(t.TempDir(), t.TempDir(), "12", "40"); err != nil {
		t.Fatalf("MoveConfig of a machine without config should be benign, got %v", err)
	}
}

func TestRemoveConfig_Idempotent(t *testing.T) {
	nspawnDir := t.TempDir()
	dropinRoot := t.TempDir()

	if err := WriteConfig(nspawnDir, dropinRoot, "br0", "12", &Profile{CPUQuota: "50%"}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	for try := 0; try < 2; try++ {
		if err := RemoveConfig(nspawnDir, dropinRoot, "12"); err != nil {
			t.Fatalf("RemoveConfig (try %d): %v", try, err)
		}
	}

	if _, err := os.Stat(ConfigPath(nspawnDir, "12")); !os.IsNotExist(err) {
		t.Error("settings file still present")
	}
	if _, err := os.Stat(DropinDir(dropinRoot, "12")); !os.IsNotExist(err) {
		t.Error("drop-in directory still present")
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	content := `{
	// Large build machines.
	"memory_max": "8G",
	"cpu_quota": "400%",
	"tasks_max": 1024,
	"binds": [
		"/srv/cache:/cache",
	],
}`
	if err := os.WriteFile(filepath.Join(dir, "build.jsonc"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	profile, err := LoadProfile(dir, "build")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if profile.MemoryMax != "8G" || profile.CPUQuota != "400%" || profile.TasksMax != 1024 {
		t.Errorf("profile = %+v", profile)
	}
	if len(profile.Binds) != 1 || profile.Binds[0] != "/srv/cache:/cache" {
		t.Errorf("binds = %v", profile.Binds)
	}
	if !profile.HasLimits() {
		t.Error("HasLimits = false")
	}
}

func TestLoadProfile_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "typo.jsonc"), []byte(`{"memory": "8G"}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadProfile(dir, "typo")
	if err == nil {
		t.Fatal("unknown field should be rejected")
	}
	if !strings.Contains(err.Error(), "typo.jsonc") {
		t.Errorf("error = %v, want file named", err)
	}
}

func TestLoadProfile_BadName(t *testing.T) {
	for _, name := range []string{"../etc/passwd", "Big", "", "a/b", ".hidden"} {
		if _, err := LoadProfile(t.TempDir(), name); err == nil {
			t.Errorf("LoadProfile(%q) should reject the name", name)
		}
	}
}

func TestLoadProfile_Missing(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "absent")
	if err == nil {
		t.Fatal("missing profile should be an error")
	}
	if !strings.Contains(err.Error(), "absent") {
		t.Errorf("error = %v, want profile named", err)
	}
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"bad memory", Profile{MemoryMax: "lots"}, "not a size"},
		{"bad quota", Profile{CPUQuota: "2.5"}, "not a percentage"},
		{"negative tasks", Profile{TasksMax: -1}, "must not be negative"},
		{"relative bind", Profile{Binds: []string{"srv/data"}}, "not an absolute path"},
		{"relative bind target", Profile{Binds: []string{"/srv:data"}}, "not an absolute path"},
		{"too many parts", Profile{Binds: []string{"/a:/b:ro:extra"}}, "too many"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.profile.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestProfileValidate_AcceptsGoodValues(t *testing.T) {
	profiles := []Profile{
		{},
		{MemoryMax: "infinity"},
		{MemoryMax: "536870912"},
		{CPUQuota: "100%", TasksMax: 1},
		{Binds: []string{"/srv", "/a:/b", "/a:/b:ro"}},
	}
	for _, profile := range profiles {
		if err := profile.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", profile, err)
		}
	}
}
