package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/i474232898/cmip6-download/internal/cmip6"
)

func init() {
	color.NoColor = true
}

func TestReporterLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	tr := cmip6.Triple{Model: "access_cm2", Scenario: "historical", Variable: "precipitation"}

	r.Requesting(tr)
	r.Extracted(tr, "data/access_cm2/historical/access_cm2_historical_precipitation.nc")
	r.Removed("provenance.json")
	r.ArchiveRemoved("data/access_cm2/historical/access_cm2_historical_precipitation.zip")
	r.Failed(cmip6.Outcome{
		Triple:  tr,
		Status:  cmip6.StatusRetrievalFailure,
		Err:     errors.New("boom"),
		Message: "boom",
	})
	r.Done(cmip6.RunSummary{Total: 2, Succeeded: 1, Failed: 1}, "data")

	out := buf.String()
	for _, want := range []string{
		"Requesting precipitation | model=access_cm2 | scenario=historical...\n",
		"  >> Extracted NetCDF: data/access_cm2/historical/access_cm2_historical_precipitation.nc\n",
		"  -- Removed: provenance.json\n",
		"  ** Removed ZIP: data/access_cm2/historical/access_cm2_historical_precipitation.zip\n",
		"  !! ERROR processing precipitation for access_cm2/historical: boom\n",
		"All done. Downloaded files are in 'data/'.\n",
		"2 processed, 1 extracted, 0 without data file, 1 failed.\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPrintPlan(t *testing.T) {
	c := cmip6.DefaultCatalog().WithSelection(
		[]string{"cesm2"},
		[]string{"historical", "ssp5_8_5"},
		[]string{"precipitation"},
	)

	var buf bytes.Buffer
	PrintPlan(&buf, c, "data")

	out := buf.String()
	if !strings.Contains(out, "projections-cmip6 (monthly): 2 requests") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "cesm2_historical_precipitation.nc") || !strings.Contains(out, "1850-2014") {
		t.Fatalf("missing historical line:\n%s", out)
	}
	if !strings.Contains(out, "cesm2_ssp5_8_5_precipitation.nc") || !strings.Contains(out, "2015-2100") {
		t.Fatalf("missing projection line:\n%s", out)
	}
}
