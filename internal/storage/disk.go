package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Footprint is the on-disk size of the local state, in bytes.
type Footprint struct {
	Catalog     int64 `json:"catalog_bytes"`
	NameIndex   int64 `json:"name_index_bytes"`
	VectorIndex int64 `json:"vector_index_bytes"`
}

// Total sums all parts.
func (f Footprint) Total() int64 {
	return f.Catalog + f.NameIndex + f.VectorIndex
}

// MeasureFootprint sizes the catalog database (with its WAL sidecars), the name index
// directory, and the local vector index file. Missing paths count as zero.
func MeasureFootprint(catalogPath, nameIndexPath, vectorIndexPath string) (Footprint, error) {
	var fp Footprint
	var err error
	if fp.Catalog, err = pathSize(catalogPath, catalogPath+"-wal", catalogPath+"-shm"); err != nil {
		return fp, err
	}
	if fp.NameIndex, err = pathSize(nameIndexPath); err != nil {
		return fp, err
	}
	if fp.VectorIndex, err = pathSize(vectorIndexPath); err != nil {
		return fp, err
	}
	return fp, nil
}

func pathSize(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" || p == ":memory:" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
