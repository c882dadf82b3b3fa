package grid

import "fmt"

// MergeStats summarizes one reconciliation pass.
type MergeStats struct {
	Scanned  int
	Replaced int
}

// MergeFrom pulls every tile of src that was visited more recently than the
// replica's copy. Equal stamps keep the replica's tile. Nothing flows back
// to src.
func (r *Replica) MergeFrom(src *Map) (MergeStats, error) {
	return mergeInto(r.m, src)
}

func mergeInto(dst, src *Map) (MergeStats, error) {
	if dst.width != src.width || dst.height != src.height {
		return MergeStats{}, fmt.Errorf("merge: dimension mismatch %dx%d vs %dx%d", dst.width, dst.height, src.width, src.height)
	}
	st := MergeStats{Scanned: len(src.tiles)}
	for i := range src.tiles {
		if src.tiles[i].LastVisited > dst.tiles[i].LastVisited {
			dst.tiles[i] = src.tiles[i]
			st.Replaced++
		}
	}
	return st, nil
}

// Merge returns a copy of a with every tile of b that is newer than a's.
func Merge(a, b *Map) (*Map, error) {
	out := a.Clone()
	if _, err := mergeInto(out, b); err != nil {
		return nil, err
	}
	return out, nil
}
