package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n, ok := c.Nodes.ByType["iron_vein"]
	if !ok || n.Item != "iron_ore" || n.Capacity != 5 || n.CooldownTicks != 2 {
		t.Fatalf("iron_vein mismatch: %+v", n)
	}
	if !c.Stackable("coins") || c.Stackable("iron_ore") {
		t.Fatalf("stackable flags mismatch")
	}
	if _, ok := c.Area("valley"); !ok {
		t.Fatalf("expected valley area")
	}
	if len(c.Items.Digest) != 64 || c.WorldDigest == "" {
		t.Fatalf("expected sha256 digests")
	}
}

func TestLoad_RejectsUnknownRecipeItem(t *testing.T) {
	dir := t.TempDir()
	src := "../../../configs"
	for _, name := range []string{"items.json", "nodes.json", "npcs.json", "shops.json", "quests.json", "world.json"} {
		b, err := os.ReadFile(filepath.Join(src, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	bad := `[{"id":"r","skill":"smithing","level":1,"inputs":[{"item":"unobtainium","count":1}],"outputs":[],"ticks":0,"xp":1}]`
	if err := os.WriteFile(filepath.Join(dir, "recipes.json"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write recipes: %v", err)
	}
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "unknown item") {
		t.Fatalf("expected unknown item error, got %v", err)
	}
}
