package route

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
)

// DefaultFileCount is the number of route files the application ships with.
const DefaultFileCount = 7

var fileNameRE = regexp.MustCompile(`^route(\d+)\.json$`)

// FileName returns the conventional file name for the n-th route (1-based).
func FileName(n int) string {
	return fmt.Sprintf("route%d.json", n)
}

// ReadFile reads and parses a single route file.
func ReadFile(path string) (Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Route{}, err
	}
	r, err := Parse(data)
	if err != nil {
		var inv *InvalidRouteFileError
		if errors.As(err, &inv) {
			inv.Path = path
		}
		return Route{}, err
	}
	return r, nil
}

// LoadDir loads route1.json through route<count>.json from dir. When count is
// zero or negative every route<N>.json in dir is loaded in ascending N.
//
// Loading never aborts on a single file: missing files are skipped silently,
// unusable files are excluded and reported in the returned error slice.
func LoadDir(dir string, count int) (*Store, []error) {
	var paths []string
	if count > 0 {
		for i := 1; i <= count; i++ {
			paths = append(paths, filepath.Join(dir, FileName(i)))
		}
	} else {
		found, err := discover(dir)
		if err != nil {
			return emptyStore(), []error{fmt.Errorf("list %s: %w", dir, err)}
		}
		paths = found
	}
	return LoadFiles(paths)
}

// LoadFiles loads the given route files in order with the same partial
// success semantics as LoadDir. A route whose ID was already loaded from an
// earlier file is rejected.
func LoadFiles(paths []string) (*Store, []error) {
	var (
		routes []Route
		errs   []error
		seen   = make(map[string]string)
	)
	for _, p := range paths {
		r, err := ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			var inv *InvalidRouteFileError
			if !errors.As(err, &inv) {
				err = &InvalidRouteFileError{Path: p, Err: err}
			}
			errs = append(errs, err)
			continue
		}
		if first, dup := seen[r.ID]; dup {
			errs = append(errs, &InvalidRouteFileError{
				Path: p,
				Err:  fmt.Errorf("%w: %s (first in %s)", ErrDuplicateID, r.ID, first),
			})
			continue
		}
		seen[r.ID] = p
		routes = append(routes, r)
	}

	s, err := NewStore(routes)
	if err != nil {
		// Unreachable: IDs were validated and deduplicated above.
		return emptyStore(), append(errs, err)
	}
	return s, errs
}

func emptyStore() *Store {
	s, _ := NewStore(nil)
	return s
}

func discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, path: filepath.Join(dir, e.Name())})
	}
	slices.SortFunc(found, func(a, b numbered) int { return a.n - b.n })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
