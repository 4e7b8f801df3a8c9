package checkout

import "reflect"

// isValid reports whether a stored entry may still be served for the given
// request. An entry is valid iff its stored clone options deeply equal the
// requesting options and its checkout directory is still accessible on
// storage.
//
// The directory may have been removed out of band (external cleanup, disk
// pressure) after caching, so validity is re-checked on every reuse. Any
// storage-access failure counts as invalid, never as an error: the caller
// evicts and re-materializes.
func (l *Loader) isValid(e *entry, params LoadParams) bool {
	if !reflect.DeepEqual(e.options, params.Options) {
		return false
	}

	info, err := l.fs.Stat(e.checkout.Path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
