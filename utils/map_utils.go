package utils

// CloneMap returns a shallow copy of m, never nil.
func CloneMap[M ~map[K]V, K comparable, V any](m M) M {
	cloneM := make(M, len(m))
	for k, v := range m {
		cloneM[k] = v
	}
	return cloneM
}

// UniqueSlice drops repeated elements in place, keeping first occurrences
// in order.
func UniqueSlice[K comparable](a []K) []K {
	m := make(map[K]bool)
	for i := 0; i < len(a); {
		v := a[i]
		if !m[v] {
			m[v] = true
			i++
			continue
		}
		a = append(a[:i], a[i+1:]...)
	}
	return a
}
