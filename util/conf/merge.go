package conf

// MergeDefaults flattens the given maps into one, prefixing every key
// with the namespace: MergeDefaults("run", {"python": ...}) yields
// {"run.python": ...}. Later maps win on key collisions.
func MergeDefaults[M ~map[string]V, V any](ns string, maps ...M) M {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	merged := make(M, size)
	for _, m := range maps {
		for key, value := range m {
			merged[ns+Delim+key] = value
		}
	}

	return merged
}
