package cmip6

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestInspectRejectsNonNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.nc")
	if err := os.WriteFile(path, []byte("definitely not netcdf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Inspect(path); err == nil {
		t.Fatalf("expected an error for a non-NetCDF file")
	}
}

func TestUnreadableDataFileIsStillKept(t *testing.T) {
	svc, dataDir, _ := newTestService(t, &fakeRetriever{t: t}, smallCatalog())
	svc.inspect = true

	tr := Triple{Model: "access_cm2", Scenario: "historical", Variable: "precipitation"}
	o := svc.ProcessTriple(context.Background(), tr)
	if o.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%v)", o.Status, o.Err)
	}
	if _, err := os.Stat(OutputPath(dataDir, tr)); err != nil {
		t.Fatalf("expected the data file to be kept: %v", err)
	}
}
