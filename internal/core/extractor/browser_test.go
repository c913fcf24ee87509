package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/launcher/flags"
)

func TestRodRendererProfileDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "browser")
	r := &RodRenderer{UserDataDir: base}

	first, err := r.profileDir()
	if err != nil {
		t.Fatalf("profileDir: %v", err)
	}
	second, err := r.profileDir()
	if err != nil {
		t.Fatalf("profileDir: %v", err)
	}

	if first == second {
		t.Fatalf("concurrent renders would share profile %s", first)
	}
	for _, dir := range []string{first, second} {
		if filepath.Dir(dir) != base {
			t.Errorf("profile %s is not under %s", dir, base)
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("profile %s was not created: %v", dir, err)
		}
	}

	if got := r.createLauncher(first).Get(flags.UserDataDir); got != first {
		t.Errorf("launcher user-data-dir = %q, want %q", got, first)
	}
}
