package loader

import "github.com/huitest/liota/internal/pkgtypes"

// Default returns the production Loader: source artifacts are built and
// loaded via SourceLoader, compiled/optimized-compiled artifacts via
// FileLoader.
func Default() pkgtypes.Loader {
	return &dispatchLoader{
		source: &SourceLoader{},
		file:   FileLoader{},
	}
}

type dispatchLoader struct {
	source *SourceLoader
	file   FileLoader
}

func (d *dispatchLoader) Load(path string, ext pkgtypes.Extension) (pkgtypes.Module, error) {
	if ext == pkgtypes.ExtSource {
		return d.source.Load(path, ext)
	}
	return d.file.Load(path, ext)
}
