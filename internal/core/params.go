package core

// CommonParameters folds the parameter values of every entry's reference into
// the bindings shared by the set. A key survives only if every reference that
// defines it agrees on the value. Once two references disagree the key is gone
// for good, even if later references agree with one of them again. A key
// defined by a single reference is kept.
func CommonParameters(entries []SetEntry) map[string]string {
	common := make(map[string]string)
	conflicted := make(map[string]bool)
	for _, e := range entries {
		if e.Ref == nil {
			continue
		}
		for k, v := range e.Ref.ParameterValues {
			if conflicted[k] {
				continue
			}
			prev, ok := common[k]
			switch {
			case !ok:
				common[k] = v
			case prev != v:
				delete(common, k)
				conflicted[k] = true
			}
		}
	}
	return common
}
