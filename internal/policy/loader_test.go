package policy

import (
	"testing"

	"github.com/spf13/afero"
)

func TestLoader_LoadAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	baseDir := "/project/.shiftwing/policies"

	files := map[string]string{
		baseDir + "/b.rego":        "package shiftwing.autoapprove",
		baseDir + "/a.rego":        "package shiftwing.autoapprove",
		baseDir + "/nested/c.rego": "package shiftwing.autoapprove",
		baseDir + "/README.md":     "# not a policy",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	policies, err := NewLoader(fs, baseDir).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(policies) != 3 {
		t.Fatalf("LoadAll() returned %d policies, want 3", len(policies))
	}
	if policies[0].Name != "a" || policies[1].Name != "b" || policies[2].Name != "c" {
		t.Errorf("unexpected order: %s, %s, %s", policies[0].Name, policies[1].Name, policies[2].Name)
	}
}

func TestLoader_MissingDirectory(t *testing.T) {
	policies, err := NewLoader(afero.NewMemMapFs(), "/missing").LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(policies) != 0 {
		t.Errorf("expected no policies, got %d", len(policies))
	}
}
