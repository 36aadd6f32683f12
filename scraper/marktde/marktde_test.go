package marktde

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Teichhofer/Marktview/config"
	"github.com/Teichhofer/Marktview/models"
	"github.com/Teichhofer/Marktview/utils"
)

func TestFilterKnown(t *testing.T) {
	s := &Scraper{logger: utils.NewLogger(), known: utils.NewIDSet()}
	s.known.Seed(map[string]struct{}{"123456789": {}})

	stubs := []*models.Listing{
		models.New("Bekannt", "https://erotik.markt.de/anzeige/bekannt/123456789"),
		models.New("Neu", "https://erotik.markt.de/anzeige/neu/987654321"),
	}

	fresh := s.filterKnown(stubs)
	if len(fresh) != 1 {
		t.Fatalf("filterKnown kept %d stubs, want 1", len(fresh))
	}
	if fresh[0].Title != "Neu" {
		t.Errorf("kept stub = %q, want the unknown one", fresh[0].Title)
	}
}

func TestFilterKnownWithEmptySet(t *testing.T) {
	s := &Scraper{logger: utils.NewLogger(), known: utils.NewIDSet()}

	stubs := []*models.Listing{
		models.New("Eins", "https://erotik.markt.de/anzeige/eins/1"),
		models.New("Zwei", "https://erotik.markt.de/anzeige/zwei/2"),
	}
	if fresh := s.filterKnown(stubs); len(fresh) != 2 {
		t.Errorf("filterKnown kept %d stubs, want all with an empty known set", len(fresh))
	}
}

func TestDumpPage(t *testing.T) {
	dir := t.TempDir()
	s := &Scraper{
		cfg:    &config.Config{OutputPath: filepath.Join(dir, "out", "anzeigen.csv")},
		logger: utils.NewLogger(),
	}

	const snapshot = "<html><body>leer</body></html>"
	path, err := s.dumpPage(snapshot, 3)
	if err != nil {
		t.Fatalf("dumpPage returned %v", err)
	}
	if filepath.Base(path) != "dump_page_3.html" {
		t.Errorf("dump file = %q, want dump_page_3.html", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	if string(data) != snapshot {
		t.Errorf("dump content = %q", data)
	}
}

func TestFindChromeBinaryPrefersOverride(t *testing.T) {
	if got := findChromeBinary("/opt/custom/chrome"); got != "/opt/custom/chrome" {
		t.Errorf("findChromeBinary = %q, want the configured path", got)
	}

	t.Setenv("CHROME_BIN", "/tmp/env-chrome")
	if got := findChromeBinary(""); got != "/tmp/env-chrome" {
		t.Errorf("findChromeBinary = %q, want CHROME_BIN value", got)
	}
}
