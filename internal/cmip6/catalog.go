package cmip6

import (
	"fmt"
	"strconv"
)

// Catalog is the immutable set of enumerations a batch iterates over.
type Catalog struct {
	DatasetID          string   `validate:"required"`
	TemporalResolution string   `validate:"required"`
	Models             []string `validate:"required,min=1,dive,required"`
	Scenarios          []string `validate:"required,min=1,dive,required"`
	Variables          []string `validate:"required,min=1,dive,required"`

	// Historical and projection year ranges, inclusive.
	HistoricalStart int `validate:"gt=0"`
	HistoricalEnd   int `validate:"gtefield=HistoricalStart"`
	ProjectionStart int `validate:"gt=0"`
	ProjectionEnd   int `validate:"gtefield=ProjectionStart"`
}

// DefaultCatalog returns the CMIP6 selection the downloader ships with.
func DefaultCatalog() Catalog {
	return Catalog{
		DatasetID:          "projections-cmip6",
		TemporalResolution: "monthly",
		Variables: []string{
			"near_surface_air_temperature",
			"precipitation",
			"evaporation_including_sublimation_and_transpiration",
			"total_runoff",
		},
		Models: []string{
			"access_cm2",
			"access_esm1_5",
			"awi_esm_1_1_lr",
			"cesm2",
			"cesm2_waccm",
			"ec_earth3_cc",
			"ec_earth3_veg_lr",
			"hadgem3_gc31_mm",
			"inm_cm4_8",
			"inm_cm5_0",
			"mpi_esm1_2_hr",
			"noresm2_mm",
			"mpi_esm1_2_lr",
			"hadgem3_gc31_ll",
		},
		Scenarios: []string{
			ScenarioHistorical,
			"ssp1_1_9",
			"ssp1_2_6",
			"ssp2_4_5",
			"ssp3_7_0",
			"ssp4_3_4",
			"ssp4_6_0",
			"ssp5_8_5",
			"ssp5_3_4os",
		},
		HistoricalStart: 1850,
		HistoricalEnd:   2014,
		ProjectionStart: 2015,
		ProjectionEnd:   2100,
	}
}

// WithSelection returns a copy of c restricted to the given lists.
// Empty arguments keep the corresponding list unchanged.
func (c Catalog) WithSelection(models, scenarios, variables []string) Catalog {
	out := c
	if len(models) > 0 {
		out.Models = models
	}
	if len(scenarios) > 0 {
		out.Scenarios = scenarios
	}
	if len(variables) > 0 {
		out.Variables = variables
	}
	out.Models = append([]string(nil), out.Models...)
	out.Scenarios = append([]string(nil), out.Scenarios...)
	out.Variables = append([]string(nil), out.Variables...)
	return out
}

// Triples returns the cartesian product models × scenarios × variables,
// models outermost and variables innermost.
func (c Catalog) Triples() []Triple {
	triples := make([]Triple, 0, len(c.Models)*len(c.Scenarios)*len(c.Variables))
	for _, m := range c.Models {
		for _, s := range c.Scenarios {
			for _, v := range c.Variables {
				triples = append(triples, Triple{Model: m, Scenario: s, Variable: v})
			}
		}
	}
	return triples
}

// YearsFor returns the requested years for a scenario. Every scenario other
// than historical is a projection.
func (c Catalog) YearsFor(scenario string) []string {
	if scenario == ScenarioHistorical {
		return yearRange(c.HistoricalStart, c.HistoricalEnd)
	}
	return yearRange(c.ProjectionStart, c.ProjectionEnd)
}

// Months returns "01" through "12".
func Months() []string {
	months := make([]string, 0, 12)
	for m := 1; m <= 12; m++ {
		months = append(months, fmt.Sprintf("%02d", m))
	}
	return months
}

func yearRange(from, to int) []string {
	if to < from {
		return nil
	}
	years := make([]string, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, strconv.Itoa(y))
	}
	return years
}
