package framework

// BundleSpec names one bundle a batch call should install, and whether it
// should also be started immediately after install.
type BundleSpec struct {
	Location  string
	AutoStart bool
}

// InstallBundles installs every spec's location in order, starting any
// whose AutoStart is set, stopping at the first failure. Returns the ids
// successfully installed before any failure.
func (f *Framework) InstallBundles(specs ...BundleSpec) ([]int64, error) {
	ids := make([]int64, 0, len(specs))
	for _, spec := range specs {
		id, err := f.InstallBundle(spec.Location)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
		if spec.AutoStart {
			if err := f.StartBundle(id); err != nil {
				return ids, err
			}
		}
	}
	return ids, nil
}
