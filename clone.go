package vermaster

import (
	c "github.com/unkn0wn-root/vermaster/codec"
	"github.com/unkn0wn-root/vermaster/master"
)

// resolveClone picks how values are copied across the cache boundary.
func resolveClone[T any](opts Options[T], log Logger) CloneFunc[T] {
	if opts.Clone != nil {
		return opts.Clone
	}
	var zero T
	if _, ok := any(zero).(Cloner[T]); ok {
		return func(v T) T {
			if cl, ok := any(v).(Cloner[T]); ok {
				return cl.Clone()
			}
			return v
		}
	}
	if opts.Codec != nil {
		codec := opts.Codec
		return func(v T) T {
			out, err := c.Clone(codec, v)
			if err != nil {
				log.Warn("codec clone failed; returning shallow copy", Fields{"err": err})
				return v
			}
			return out
		}
	}
	return func(v T) T { return v }
}

func cloneDoc[T any](clone CloneFunc[T], d master.Document[T]) master.Document[T] {
	d.Value = clone(d.Value)
	return d
}
