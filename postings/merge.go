package postings

import "io"

// MergeReaders returns a Reader that merges the sorted output of several
// source Readers, recursing in a balanced binary tree so no single pair
// absorbs all the fan-in. Grounded on the teacher's
// index/item.go MergeItemReaders / index/reader.go MergeValueReaders,
// which duplicated this exact algorithm for two unrelated element types;
// here it is written once against the shared Posting type.
func MergeReaders(readers ...Reader) Reader {
	switch len(readers) {
	case 0:
		return nil
	case 1:
		return readers[0]
	case 2:
		if readers[0] == nil {
			return readers[1]
		}
		if readers[1] == nil {
			return readers[0]
		}
		return &mergeReader{r1: readers[0], r2: readers[1], numDocs: readers[0].NumDocs() + readers[1].NumDocs()}
	}
	mid := len(readers) / 2
	return MergeReaders(MergeReaders(readers[:mid]...), MergeReaders(readers[mid:]...))
}

type mergeReader struct {
	r1, r2         Reader
	block1, block2 []Posting
	buf            []Posting
	numDocs        int
}

func (r *mergeReader) NumDocs() int {
	return r.numDocs
}

func (r *mergeReader) ReadBlock() (out []Posting, err error) {
	if len(r.block1) == 0 && r.r1 != nil {
		r.block1, err = r.r1.ReadBlock()
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			r.r1 = nil
			err = nil
		}
	}

	if len(r.block2) == 0 && r.r2 != nil {
		r.block2, err = r.r2.ReadBlock()
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			r.r2 = nil
			err = nil
		}
	}

	if len(r.block1) > 0 && len(r.block2) > 0 {
		n := len(r.block1) + len(r.block2)
		if cap(r.buf) >= n {
			out = r.buf[:n]
		} else {
			out = make([]Posting, n)
			r.buf = out
		}
		for i := range out {
			v1, v2 := r.block1[0], r.block2[0]
			if v1.Less(v2) || v1 == v2 {
				out[i] = v1
				r.block1 = r.block1[1:]
				if len(r.block1) == 0 {
					return out[:i+1], nil
				}
			} else {
				out[i] = v2
				r.block2 = r.block2[1:]
				if len(r.block2) == 0 {
					return out[:i+1], nil
				}
			}
		}
		return out, nil
	}

	if len(r.block1) > 0 {
		out, r.block1 = r.block1, nil
		return out, nil
	}

	if len(r.block2) > 0 {
		out, r.block2 = r.block2, nil
		return out, nil
	}

	return nil, io.EOF
}
