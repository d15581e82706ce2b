package cmip6

import (
	"sort"

	"github.com/batchatco/go-native-netcdf/netcdf"
)

// FileSummary is a short description of an extracted NetCDF file.
type FileSummary struct {
	Variables  []string
	Dimensions []string
	Attributes int
}

// Inspect opens a NetCDF file and summarises its contents. It is used for
// diagnostics only; a file that cannot be read is still kept.
func Inspect(path string) (FileSummary, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return FileSummary{}, err
	}
	defer nc.Close()

	s := FileSummary{Variables: nc.ListVariables()}
	if attrs := nc.Attributes(); attrs != nil {
		s.Attributes = len(attrs.Keys())
	}

	dims := make(map[string]struct{})
	for _, name := range s.Variables {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		for _, d := range vg.Dimensions() {
			dims[d] = struct{}{}
		}
	}
	for d := range dims {
		s.Dimensions = append(s.Dimensions, d)
	}
	sort.Strings(s.Dimensions)
	return s, nil
}
